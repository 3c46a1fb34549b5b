package s3

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hupe1980/sigtree/blobstore"
)

// DDBCommitStore is an S3 blob store that commits pointer blobs (see
// blobstore.IsPointer) through DynamoDB conditional writes. Every other
// blob goes to S3 unchanged.
//
// Publishing an index writes its versioned tree and traits blobs to S3 and
// then commits the pointer. Two builds publishing the same name at once
// cannot both win: the loser gets blobstore.ErrConcurrentModification.
//
// Table schema:
//   - Partition key: pointer (string) - s3://bucket/prefix/name.current
//   - Sort key: version (number) - monotonically increasing version
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name sigtree-commits \
//	  --attribute-definitions AttributeName=pointer,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=pointer,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type DDBCommitStore struct {
	*Store
	ddb   DDBClient
	table string
}

var _ blobstore.BlobStore = (*DDBCommitStore)(nil)

// DDBClient is the subset of the DynamoDB API used by DDBCommitStore.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// NewDDBCommitStore wraps store with DynamoDB pointer commits in table.
func NewDDBCommitStore(store *Store, ddb DDBClient, table string) *DDBCommitStore {
	return &DDBCommitStore{Store: store, ddb: ddb, table: table}
}

// NewCommitStore is New plus a DynamoDB client from the same AWS
// configuration.
func NewCommitStore(ctx context.Context, bucket, table string, optFns ...Option) (*DDBCommitStore, error) {
	opts := options{upload: DefaultUploadConfig()}
	for _, fn := range optFns {
		fn(&opts)
	}
	cfg, err := loadConfig(ctx, opts)
	if err != nil {
		return nil, err
	}
	ddb := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opts.endpoint != "" {
			o.BaseEndpoint = aws.String(opts.endpoint)
		}
	})
	return NewDDBCommitStore(newFromConfig(cfg, bucket, opts), ddb, table), nil
}

func loadConfig(ctx context.Context, opts options) (aws.Config, error) {
	var cfgOpts []func(*config.LoadOptions) error
	if opts.region != "" {
		cfgOpts = append(cfgOpts, config.WithRegion(opts.region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("s3: load config: %w", err)
	}
	return cfg, nil
}

func newFromConfig(cfg aws.Config, bucket string, opts options) *Store {
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.endpoint != "" {
			o.BaseEndpoint = aws.String(opts.endpoint)
		}
		o.UsePathStyle = opts.usePathStyle
	})
	return NewStoreWithUpload(client, bucket, opts.prefix, opts.upload)
}

func (s *DDBCommitStore) pointerKey(name string) string {
	return "s3://" + s.bucket + "/" + s.key(name)
}

// Open opens a blob. Pointer blobs are read from the latest commit.
func (s *DDBCommitStore) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	if !blobstore.IsPointer(name) {
		return s.Store.Open(ctx, name)
	}
	version, target, err := s.latest(ctx, name)
	if err != nil {
		return nil, err
	}
	if version == 0 {
		return nil, fmt.Errorf("%w: %s", blobstore.ErrNotFound, name)
	}
	return blobstore.BytesBlob([]byte(target)), nil
}

// Put writes a blob. Pointer blobs are committed as a new version.
func (s *DDBCommitStore) Put(ctx context.Context, name string, data []byte) error {
	if !blobstore.IsPointer(name) {
		return s.Store.Put(ctx, name, data)
	}
	return s.commit(ctx, name, string(data))
}

// Create creates a writable blob. Pointer blobs must be written with Put.
func (s *DDBCommitStore) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	if blobstore.IsPointer(name) {
		return nil, fmt.Errorf("s3: pointer blob %s must be written with Put", name)
	}
	return s.Store.Create(ctx, name)
}

func (s *DDBCommitStore) latest(ctx context.Context, name string) (uint64, string, error) {
	resp, err := s.ddb.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("pointer = :p"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":p": &types.AttributeValueMemberS{Value: s.pointerKey(name)},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, "", fmt.Errorf("s3: query commits: %w", err)
	}
	if len(resp.Items) == 0 {
		return 0, "", nil
	}

	item := resp.Items[0]
	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("s3: invalid version attribute in commit log")
	}
	targetAttr, ok := item["target"].(*types.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("s3: invalid target attribute in commit log")
	}
	version, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("s3: parse version: %w", err)
	}
	return version, targetAttr.Value, nil
}

func (s *DDBCommitStore) commit(ctx context.Context, name, target string) error {
	current, _, err := s.latest(ctx, name)
	if err != nil {
		return err
	}

	_, err = s.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			"pointer": &types.AttributeValueMemberS{Value: s.pointerKey(name)},
			"version": &types.AttributeValueMemberN{Value: strconv.FormatUint(current+1, 10)},
			"target":  &types.AttributeValueMemberS{Value: target},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return fmt.Errorf("%w: %s", blobstore.ErrConcurrentModification, name)
		}
		return fmt.Errorf("s3: commit %s: %w", name, err)
	}
	return nil
}
