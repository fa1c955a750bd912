package storage

import (
	"context"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/teranos/strata/errors"
)

// DynamoAPI is the subset of the DynamoDB client DynamoKV uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

type dynamoItem struct {
	Key       string `dynamodbav:"PK"`
	Value     string `dynamodbav:"Value"`
	UpdatedAt string `dynamodbav:"UpdatedAt"`
}

// DynamoKV stores values in a DynamoDB table keyed by a string partition key "PK".
type DynamoKV struct {
	client DynamoAPI
	table  string
	now    func() time.Time
}

// NewDynamoKV wraps an existing client.
func NewDynamoKV(client DynamoAPI, table string) *DynamoKV {
	return &DynamoKV{client: client, table: table, now: time.Now}
}

// DynamoOptions selects the table and, for local development, an endpoint override.
type DynamoOptions struct {
	Table    string
	Region   string
	Endpoint string
}

// OpenDynamoKV builds a client from the default AWS credential chain.
func OpenDynamoKV(ctx context.Context, opts DynamoOptions) (*DynamoKV, error) {
	if opts.Table == "" {
		return nil, errors.WithHint(errors.New("dynamodb table not configured"),
			"set storage.dynamodb.table in am.toml or STRATA_STORAGE_DYNAMODB_TABLE")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}

	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})
	return NewDynamoKV(client, opts.Table), nil
}

func (d *DynamoKV) key(k string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: k},
	}
}

func (d *DynamoKV) Get(ctx context.Context, key string) (string, bool, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.table),
		Key:            d.key(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", false, errors.Wrapf(err, "get %s", key)
	}
	if out.Item == nil {
		return "", false, nil
	}

	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return "", false, errors.Wrapf(err, "unmarshal %s", key)
	}
	return item.Value, true, nil
}

func (d *DynamoKV) Set(ctx context.Context, key, value string) error {
	item, err := attributevalue.MarshalMap(dynamoItem{
		Key:       key,
		Value:     value,
		UpdatedAt: d.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return errors.Wrapf(err, "marshal %s", key)
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      item,
	})
	return errors.Wrapf(err, "put %s", key)
}

func (d *DynamoKV) Remove(ctx context.Context, key string) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.table),
		Key:       d.key(key),
	})
	return errors.Wrapf(err, "delete %s", key)
}

func (d *DynamoKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	in := &dynamodb.ScanInput{
		TableName:            aws.String(d.table),
		ProjectionExpression: aws.String("PK"),
	}
	if prefix != "" {
		in.FilterExpression = aws.String("begins_with(PK, :prefix)")
		in.ExpressionAttributeValues = map[string]types.AttributeValue{
			":prefix": &types.AttributeValueMemberS{Value: prefix},
		}
	}

	var keys []string
	pager := dynamodb.NewScanPaginator(d.client, in)
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "scan %s", d.table)
		}
		for _, raw := range page.Items {
			var item dynamoItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, errors.Wrap(err, "unmarshal key")
			}
			keys = append(keys, item.Key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
