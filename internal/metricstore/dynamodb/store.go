package dynamodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/dwsmith1983/riskreactor/internal/metricstore"
	"github.com/dwsmith1983/riskreactor/pkg/types"
)

type versionItem struct {
	PK           string   `dynamodbav:"PK"`
	SK           string   `dynamodbav:"SK"`
	CalculatedAt string   `dynamodbav:"calculatedAt"`
	Value        float64  `dynamodbav:"value"`
	StdDev       *float64 `dynamodbav:"stddev,omitempty"`
	Inputs       string   `dynamodbav:"inputs,omitempty"`
	Params       string   `dynamodbav:"params,omitempty"`
}

type paramsItem struct {
	PK     string `dynamodbav:"PK"`
	SK     string `dynamodbav:"SK"`
	Params string `dynamodbav:"params"`
}

// Store implements metricstore.Store. HEAD holds the latest calculated_at;
// a transaction conditionally advances HEAD and puts the version item, so
// concurrent writers to one instance get strictly increasing versions.
func (s *Store) Store(ctx context.Context, rec types.MetricRecord) (types.MetricRecord, error) {
	if err := types.NewJob(rec.Kind, rec.Key).Validate(); err != nil {
		return types.MetricRecord{}, fmt.Errorf("storing metric: %w", err)
	}
	pk := metricPK(rec.Kind, rec.Key)
	requested := rec.CalculatedAt

	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		latest, err := s.head(ctx, pk)
		if err != nil {
			return types.MetricRecord{}, err
		}
		rec.CalculatedAt = metricstore.NextCalculatedAt(requested, latest, s.now)

		item, err := toItem(pk, rec)
		if err != nil {
			return types.MetricRecord{}, err
		}
		av, err := attributevalue.MarshalMap(item)
		if err != nil {
			return types.MetricRecord{}, fmt.Errorf("marshaling version: %w", err)
		}

		update := &ddbtypes.Update{
			TableName: &s.tableName,
			Key: map[string]ddbtypes.AttributeValue{
				"PK": &ddbtypes.AttributeValueMemberS{Value: pk},
				"SK": &ddbtypes.AttributeValueMemberS{Value: skHead},
			},
			UpdateExpression: aws.String("SET latest = :new"),
			ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
				":new": &ddbtypes.AttributeValueMemberS{Value: item.CalculatedAt},
			},
		}
		if latest.IsZero() {
			update.ConditionExpression = aws.String("attribute_not_exists(latest)")
		} else {
			update.ConditionExpression = aws.String("latest = :prev")
			update.ExpressionAttributeValues[":prev"] = &ddbtypes.AttributeValueMemberS{
				Value: latest.UTC().Format(versionLayout),
			}
		}

		_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: []ddbtypes.TransactWriteItem{
				{Update: update},
				{Put: &ddbtypes.Put{
					TableName:           &s.tableName,
					Item:                av,
					ConditionExpression: aws.String("attribute_not_exists(SK)"),
				}},
			},
		})
		if err == nil {
			return rec, nil
		}
		if !isConditionFailure(err) {
			return types.MetricRecord{}, types.Transient(fmt.Errorf("writing %s: %w", pk, err))
		}
		s.logger.Debug("metric write raced, retrying", "pk", pk, "attempt", attempt)
	}
	return types.MetricRecord{}, types.Transient(fmt.Errorf("writing %s: exhausted %d attempts", pk, maxWriteAttempts))
}

func (s *Store) head(ctx context.Context, pk string) (time.Time, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: pk},
			"SK": &ddbtypes.AttributeValueMemberS{Value: skHead},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return time.Time{}, types.Transient(fmt.Errorf("reading head %s: %w", pk, err))
	}
	av, ok := out.Item["latest"]
	if !ok {
		return time.Time{}, nil
	}
	var latest string
	if err := attributevalue.Unmarshal(av, &latest); err != nil {
		return time.Time{}, fmt.Errorf("unmarshaling head: %w", err)
	}
	return parseVersion(latest)
}

func toItem(pk string, rec types.MetricRecord) (versionItem, error) {
	item := versionItem{
		PK:           pk,
		SK:           versionSK(rec.CalculatedAt),
		CalculatedAt: rec.CalculatedAt.UTC().Format(versionLayout),
		Value:        rec.Value,
		StdDev:       rec.StdDev,
	}
	if rec.Inputs != nil {
		data, err := json.Marshal(rec.Inputs)
		if err != nil {
			return versionItem{}, fmt.Errorf("encoding inputs: %w", err)
		}
		item.Inputs = string(data)
	}
	if rec.Params != nil {
		data, err := json.Marshal(rec.Params)
		if err != nil {
			return versionItem{}, fmt.Errorf("encoding params: %w", err)
		}
		item.Params = string(data)
	}
	return item, nil
}

func fromItem(kind types.MetricKind, key types.EntityKey, av map[string]ddbtypes.AttributeValue) (types.MetricRecord, error) {
	var item versionItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return types.MetricRecord{}, fmt.Errorf("unmarshaling version: %w", err)
	}
	at, err := parseVersion(item.CalculatedAt)
	if err != nil {
		return types.MetricRecord{}, fmt.Errorf("parsing calculatedAt: %w", err)
	}
	rec := types.MetricRecord{Kind: kind, Key: key, CalculatedAt: at, Value: item.Value, StdDev: item.StdDev}
	if item.Inputs != "" {
		if err := json.Unmarshal([]byte(item.Inputs), &rec.Inputs); err != nil {
			return types.MetricRecord{}, fmt.Errorf("decoding inputs: %w", err)
		}
	}
	if item.Params != "" {
		if err := json.Unmarshal([]byte(item.Params), &rec.Params); err != nil {
			return types.MetricRecord{}, fmt.Errorf("decoding params: %w", err)
		}
	}
	return rec, nil
}

// Load implements metricstore.Store.
func (s *Store) Load(ctx context.Context, kind types.MetricKind, key types.EntityKey, asOf *time.Time) (types.MetricRecord, error) {
	if !kind.Valid() {
		return types.MetricRecord{}, fmt.Errorf("unknown metric kind %q", kind)
	}
	pk := metricPK(kind, key)
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND SK BETWEEN :lo AND :hi"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk": &ddbtypes.AttributeValueMemberS{Value: pk},
			":lo": &ddbtypes.AttributeValueMemberS{Value: prefixVersion},
			":hi": &ddbtypes.AttributeValueMemberS{Value: versionUpperBound(asOf)},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
		ConsistentRead:   aws.Bool(true),
	})
	if err != nil {
		return types.MetricRecord{}, types.Transient(fmt.Errorf("loading %s: %w", pk, err))
	}
	if len(out.Items) == 0 {
		return types.MetricRecord{}, types.MissingMetric(kind, key, asOf)
	}
	return fromItem(kind, key, out.Items[0])
}

// LoadBulk implements metricstore.Store.
func (s *Store) LoadBulk(ctx context.Context, kind types.MetricKind, keys []types.EntityKey, asOf *time.Time) (map[types.EntityKey]types.MetricRecord, error) {
	out := make(map[types.EntityKey]types.MetricRecord, len(keys))
	for _, k := range keys {
		rec, err := s.Load(ctx, kind, k, asOf)
		if err != nil {
			if errors.Is(err, types.ErrMissingMetric) {
				continue
			}
			return nil, err
		}
		out[k] = rec
	}
	return out, nil
}

// History implements metricstore.Store.
func (s *Store) History(ctx context.Context, kind types.MetricKind, key types.EntityKey) ([]types.MetricRecord, error) {
	pk := metricPK(kind, key)
	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":     &ddbtypes.AttributeValueMemberS{Value: pk},
			":prefix": &ddbtypes.AttributeValueMemberS{Value: prefixVersion},
		},
		ScanIndexForward: aws.Bool(true),
		ConsistentRead:   aws.Bool(true),
	}

	var recs []types.MetricRecord
	for {
		out, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, types.Transient(fmt.Errorf("querying history %s: %w", pk, err))
		}
		for _, item := range out.Items {
			rec, err := fromItem(kind, key, item)
			if err != nil {
				return nil, err
			}
			recs = append(recs, rec)
		}
		if len(out.LastEvaluatedKey) == 0 {
			return recs, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// LoadParameters implements metricstore.Store.
func (s *Store) LoadParameters(ctx context.Context, tenantID uuid.UUID, name string) (map[string]any, error) {
	candidates := []uuid.UUID{tenantID}
	if tenantID != uuid.Nil {
		candidates = append(candidates, uuid.Nil)
	}
	for _, t := range candidates {
		out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: &s.tableName,
			Key: map[string]ddbtypes.AttributeValue{
				"PK": &ddbtypes.AttributeValueMemberS{Value: paramsPK(t)},
				"SK": &ddbtypes.AttributeValueMemberS{Value: paramsSK(name)},
			},
		})
		if err != nil {
			return nil, types.Transient(fmt.Errorf("loading parameters %s: %w", name, err))
		}
		if out.Item == nil {
			continue
		}
		var item paramsItem
		if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
			return nil, fmt.Errorf("unmarshaling parameters: %w", err)
		}
		var params map[string]any
		if err := json.Unmarshal([]byte(item.Params), &params); err != nil {
			return nil, fmt.Errorf("decoding parameters %s: %w", name, err)
		}
		return params, nil
	}
	return nil, nil
}

// StoreParameters implements metricstore.Store.
func (s *Store) StoreParameters(ctx context.Context, tenantID uuid.UUID, name string, values map[string]any) error {
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encoding parameters: %w", err)
	}
	av, err := attributevalue.MarshalMap(paramsItem{PK: paramsPK(tenantID), SK: paramsSK(name), Params: string(data)})
	if err != nil {
		return fmt.Errorf("marshaling parameters: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: &s.tableName, Item: av}); err != nil {
		return types.Transient(fmt.Errorf("storing parameters %s: %w", name, err))
	}
	return nil
}
