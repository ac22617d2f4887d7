package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const DefaultTableName = "consumed_tokens"

// PutItemAPI is the part of the DynamoDB client the ledger uses.
type PutItemAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Dynamo consumes tokens with a conditional put.
//
// Table requirements:
//   - PK: pk (string), formatted backend#token
type Dynamo struct {
	ddb       PutItemAPI
	tableName string
	now       func() time.Time
}

type tokenItem struct {
	PK         string `dynamodbav:"pk"`
	Backend    string `dynamodbav:"backend"`
	Token      string `dynamodbav:"token"`
	ConsumedAt string `dynamodbav:"consumed_at"`
}

func NewDynamo(ddb PutItemAPI, tableName string) *Dynamo {
	if tableName == "" {
		tableName = DefaultTableName
	}
	return &Dynamo{ddb: ddb, tableName: tableName, now: time.Now}
}

func (d *Dynamo) Consume(ctx context.Context, backend, token string) (bool, error) {
	if token == "" {
		return false, ErrEmptyToken
	}
	av, err := attributevalue.MarshalMap(tokenItem{
		PK:         backend + "#" + token,
		Backend:    backend,
		Token:      token,
		ConsumedAt: d.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return false, fmt.Errorf("ledger: marshal item: %w", err)
	}

	_, err = d.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{
			"#pk": "pk",
		},
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return true, nil
		}
		return false, fmt.Errorf("ledger: put item: %w", err)
	}
	return false, nil
}

// NewDynamoClient builds a client for region. A non-empty endpoint targets a
// local DynamoDB, which still needs static credentials to sign requests.
func NewDynamoClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if endpoint != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("ledger: load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}
