package index

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// dynamoItem is the table row shape. Partition key email, sort key assetId;
// the sort key makes rows unique per (identity, content hash).
type dynamoItem struct {
	Email         string `dynamodbav:"email"`
	AssetID       string `dynamodbav:"assetId"`
	WalletAddress string `dynamodbav:"walletAddress,omitempty"`
	FileName      string `dynamodbav:"fileName,omitempty"`
	FileType      string `dynamodbav:"fileType,omitempty"`
	StorageKey    string `dynamodbav:"storageKey,omitempty"`
	Category      string `dynamodbav:"category"`
	Price         string `dynamodbav:"price"`
	Action        string `dynamodbav:"action"`
	Timestamp     string `dynamodbav:"timestamp"`
}

func toItem(rec ListingRecord) dynamoItem {
	return dynamoItem{
		Email:         rec.Owner,
		AssetID:       rec.AssetID,
		WalletAddress: rec.WalletAddress,
		FileName:      rec.FileName,
		FileType:      rec.FileType,
		StorageKey:    rec.StorageKey,
		Category:      rec.Category,
		Price:         rec.Price,
		Action:        string(rec.Action),
		Timestamp:     rec.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

func (it dynamoItem) toRecord() ListingRecord {
	ts, _ := time.Parse(time.RFC3339Nano, it.Timestamp)
	return ListingRecord{
		Owner:         it.Email,
		AssetID:       it.AssetID,
		WalletAddress: it.WalletAddress,
		FileName:      it.FileName,
		FileType:      it.FileType,
		StorageKey:    it.StorageKey,
		Category:      it.Category,
		Price:         it.Price,
		Action:        Action(it.Action),
		Timestamp:     ts,
	}
}

// DynamoRepository is the DynamoDB-backed identity index.
type DynamoRepository struct {
	client *dynamodb.Client
	table  string
}

// NewDynamoRepository wraps an existing DynamoDB client and table name.
func NewDynamoRepository(client *dynamodb.Client, table string) *DynamoRepository {
	return &DynamoRepository{client: client, table: table}
}

// Append writes one row. Re-listing the same (identity, asset) pair
// overwrites the row in place, which matches the append semantics because the
// content hash changes on every seal.
func (r *DynamoRepository) Append(ctx context.Context, rec ListingRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	item, err := attributevalue.MarshalMap(toItem(rec))
	if err != nil {
		return fmt.Errorf("marshal listing record: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put listing record: %w", err)
	}
	return nil
}

// QueryByOwner returns the identity's records newest first
// (ScanIndexForward=false walks the sort key descending).
func (r *DynamoRepository) QueryByOwner(ctx context.Context, owner string) ([]ListingRecord, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.table),
		KeyConditionExpression: aws.String("email = :e"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":e": &ddbtypes.AttributeValueMemberS{Value: owner},
		},
		ScanIndexForward: aws.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("query identity index: %w", err)
	}
	return unmarshalItems(out.Items)
}

// ListAll scans for LISTED rows across all identities. "action" is an
// expression attribute name because it collides with a reserved word.
func (r *DynamoRepository) ListAll(ctx context.Context) ([]ListingRecord, error) {
	var records []ListingRecord
	var startKey map[string]ddbtypes.AttributeValue

	for {
		out, err := r.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(r.table),
			FilterExpression: aws.String("#a = :listed"),
			ExpressionAttributeNames: map[string]string{
				"#a": "action",
			},
			ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
				":listed": &ddbtypes.AttributeValueMemberS{Value: string(ActionListed)},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("scan identity index: %w", err)
		}

		page, err := unmarshalItems(out.Items)
		if err != nil {
			return nil, err
		}
		records = append(records, page...)

		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	// Scan order is arbitrary; present newest first like QueryByOwner.
	sortNewestFirst(records)
	return records, nil
}

func unmarshalItems(items []map[string]ddbtypes.AttributeValue) ([]ListingRecord, error) {
	records := make([]ListingRecord, 0, len(items))
	for _, raw := range items {
		var it dynamoItem
		if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
			return nil, fmt.Errorf("unmarshal listing record: %w", err)
		}
		records = append(records, it.toRecord())
	}
	return records, nil
}

func sortNewestFirst(records []ListingRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
}
