// Package dynamo stores like counters in an Amazon DynamoDB table.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"

	"github.com/helixir/paper-timeline/internal/domain"
	"github.com/helixir/paper-timeline/internal/likes"
)

// Store implements likes.Store and likes.Incrementer. The partition key is
// a string attribute named after the key column.
type Store struct {
	client      dynamodbiface.DynamoDBAPI
	tableName   string
	keyAttr     string
	countAttr   string
	titleAttr   string
	createdAttr string
}

// New creates a Store using the default AWS session.
func New(sess *session.Session, tableName, keyAttr, countAttr string) *Store {
	return NewWithClient(dynamodb.New(sess), tableName, keyAttr, countAttr)
}

// NewWithClient creates a Store with a custom client (for testing).
func NewWithClient(client dynamodbiface.DynamoDBAPI, tableName, keyAttr, countAttr string) *Store {
	if keyAttr == "" {
		keyAttr = "id"
	}
	if countAttr == "" {
		countAttr = "likes"
	}
	return &Store{
		client:      client,
		tableName:   tableName,
		keyAttr:     keyAttr,
		countAttr:   countAttr,
		titleAttr:   "title",
		createdAttr: "created_at",
	}
}

func (s *Store) key(key string) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		s.keyAttr: {S: aws.String(key)},
	}
}

// FetchAll implements likes.Store. It scans the table page by page.
func (s *Store) FetchAll(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64)
	input := &dynamodb.ScanInput{
		TableName:            aws.String(s.tableName),
		ProjectionExpression: aws.String("#k, #c"),
		ExpressionAttributeNames: map[string]*string{
			"#k": aws.String(s.keyAttr),
			"#c": aws.String(s.countAttr),
		},
	}

	for {
		result, err := s.client.ScanWithContext(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.tableName, err)
		}
		for _, item := range result.Items {
			key, count, err := s.decodeItem(item)
			if err != nil {
				return nil, err
			}
			out[key] = count
		}
		if len(result.LastEvaluatedKey) == 0 {
			return out, nil
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
}

// Get implements likes.Store.
func (s *Store) Get(ctx context.Context, key string) (int64, error) {
	result, err := s.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.key(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", key, err)
	}
	if len(result.Item) == 0 {
		return 0, domain.NewNotFoundError("like", key)
	}
	_, count, err := s.decodeItem(result.Item)
	return count, err
}

// Insert implements likes.Store.
func (s *Store) Insert(ctx context.Context, rec likes.Record) error {
	item, err := dynamodbattribute.MarshalMap(s.item(rec))
	if err != nil {
		return fmt.Errorf("marshal like %s: %w", rec.Key, err)
	}

	_, err = s.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(s.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#k)"),
		ExpressionAttributeNames: map[string]*string{"#k": aws.String(s.keyAttr)},
	})
	if isConditionFailed(err) {
		return domain.NewAlreadyExistsError("like", rec.Key)
	}
	if err != nil {
		return fmt.Errorf("put %s: %w", rec.Key, err)
	}
	return nil
}

// Update implements likes.Store.
func (s *Store) Update(ctx context.Context, key string, count int64) error {
	_, err := s.client.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 s.key(key),
		UpdateExpression:    aws.String("SET #c = :c"),
		ConditionExpression: aws.String("attribute_exists(#k)"),
		ExpressionAttributeNames: map[string]*string{
			"#k": aws.String(s.keyAttr),
			"#c": aws.String(s.countAttr),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":c": {N: aws.String(strconv.FormatInt(count, 10))},
		},
	})
	if isConditionFailed(err) {
		return domain.NewNotFoundError("like", key)
	}
	if err != nil {
		return fmt.Errorf("update %s: %w", key, err)
	}
	return nil
}

// Upsert implements likes.Store. Title and creation time are only written
// when the row is new.
func (s *Store) Upsert(ctx context.Context, rec likes.Record) error {
	_, err := s.client.UpdateItemWithContext(ctx, s.writeInput(rec, "SET #c = :c, #t = if_not_exists(#t, :t), #ca = if_not_exists(#ca, :ca)", rec.Count, dynamodb.ReturnValueNone))
	if err != nil {
		return fmt.Errorf("upsert %s: %w", rec.Key, err)
	}
	return nil
}

// Increment implements likes.Incrementer with an atomic ADD.
func (s *Store) Increment(ctx context.Context, rec likes.Record, delta int64) (int64, error) {
	result, err := s.client.UpdateItemWithContext(ctx, s.writeInput(rec, "ADD #c :c SET #t = if_not_exists(#t, :t), #ca = if_not_exists(#ca, :ca)", delta, dynamodb.ReturnValueUpdatedNew))
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", rec.Key, err)
	}

	var count int64
	if av, ok := result.Attributes[s.countAttr]; ok {
		if err := dynamodbattribute.Unmarshal(av, &count); err != nil {
			return 0, fmt.Errorf("decode %s: %w", s.countAttr, err)
		}
	}
	return count, nil
}

func (s *Store) writeInput(rec likes.Record, expr string, n int64, returnValues string) *dynamodb.UpdateItemInput {
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.tableName),
		Key:              s.key(rec.Key),
		UpdateExpression: aws.String(expr),
		ExpressionAttributeNames: map[string]*string{
			"#c":  aws.String(s.countAttr),
			"#t":  aws.String(s.titleAttr),
			"#ca": aws.String(s.createdAttr),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":c":  {N: aws.String(strconv.FormatInt(n, 10))},
			":t":  {S: aws.String(rec.Title)},
			":ca": {S: aws.String(created.UTC().Format(time.RFC3339))},
		},
		ReturnValues: aws.String(returnValues),
	}
}

func (s *Store) item(rec likes.Record) map[string]interface{} {
	item := map[string]interface{}{
		s.keyAttr:   rec.Key,
		s.countAttr: rec.Count,
	}
	if s.titleAttr != s.keyAttr {
		item[s.titleAttr] = rec.Title
	}
	if !rec.CreatedAt.IsZero() {
		item[s.createdAttr] = rec.CreatedAt.UTC().Format(time.RFC3339)
	}
	return item
}

func (s *Store) decodeItem(item map[string]*dynamodb.AttributeValue) (string, int64, error) {
	var key string
	if av, ok := item[s.keyAttr]; ok {
		switch {
		case av.S != nil:
			key = *av.S
		case av.N != nil:
			key = *av.N
		}
	}
	var count int64
	if av, ok := item[s.countAttr]; ok {
		if err := dynamodbattribute.Unmarshal(av, &count); err != nil {
			return "", 0, fmt.Errorf("decode %s for %s: %w", s.countAttr, key, err)
		}
	}
	return key, count, nil
}

func isConditionFailed(err error) bool {
	var aerr awserr.Error
	return errors.As(err, &aerr) && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException
}
