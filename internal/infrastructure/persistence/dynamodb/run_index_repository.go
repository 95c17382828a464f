package dynamodb

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dreschagin/views-collector/internal/application/port"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	defaultRunTTL    = 30 * 24 * time.Hour

	attrPK             = "PK"
	attrSK             = "SK"
	attrInvocationID   = "invocation_id"
	attrPartitionKey   = "partition_key"
	attrObjectKey      = "object_key"
	attrLocation       = "location"
	attrOutcome        = "outcome"
	attrStopReason     = "stop_reason"
	attrErrorKind      = "error_kind"
	attrErrorMessage   = "error_message"
	attrRows           = "rows"
	attrPages          = "pages"
	attrMetricFailures = "metric_failures"
	attrStartedAt      = "started_at"
	attrFinishedAt     = "finished_at"
	attrExpiresAt      = "expires_at"
)

type Config struct {
	TableName       string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	// RunTTL sets expires_at; the table's TTL attribute must point at it.
	RunTTL      time.Duration
	StrongReads bool
}

// RunIndexRepository stores one item per invocation, grouped by partition
// bucket and ordered by start time within it.
type RunIndexRepository struct {
	client      *dynamodb.Client
	tableName   string
	runTTL      time.Duration
	strongReads bool
	now         func() time.Time
}

var _ port.RunIndexRepository = (*RunIndexRepository)(nil)

type cursorPayload struct {
	PartitionKey string                 `json:"partition_key"`
	Key          map[string]cursorValue `json:"key"`
}

type cursorValue struct {
	S string `json:"s,omitempty"`
	N string `json:"n,omitempty"`
}

func NewRunIndexRepository(ctx context.Context, cfg Config) (*RunIndexRepository, error) {
	if strings.TrimSpace(cfg.TableName) == "" {
		return nil, fmt.Errorf("dynamodb table name is required")
	}
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.RunTTL <= 0 {
		cfg.RunTTL = defaultRunTTL
	}

	loadOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	accessKeyID := strings.TrimSpace(cfg.AccessKeyID)
	secretAccessKey := strings.TrimSpace(cfg.SecretAccessKey)
	if accessKeyID != "" || secretAccessKey != "" {
		if accessKeyID == "" || secretAccessKey == "" {
			return nil, fmt.Errorf("both dynamodb access key id and secret access key are required for static credentials")
		}
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID,
			secretAccessKey,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws config for dynamodb: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(options *dynamodb.Options) {
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			options.BaseEndpoint = &endpoint
		}
	})

	return &RunIndexRepository{
		client:      client,
		tableName:   strings.TrimSpace(cfg.TableName),
		runTTL:      cfg.RunTTL,
		strongReads: cfg.StrongReads,
		now:         time.Now,
	}, nil
}

func (r *RunIndexRepository) Put(ctx context.Context, record port.RunRecord) error {
	item, err := r.toItem(record)
	if err != nil {
		return err
	}

	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &r.tableName,
		Item:      item,
	}); err != nil {
		return fmt.Errorf("dynamodb put item failed: %w", err)
	}
	return nil
}

// ListByPartition returns the runs of one bucket, newest first.
func (r *RunIndexRepository) ListByPartition(ctx context.Context, query port.RunListQuery) (port.RunListPage, error) {
	partition := strings.TrimSpace(query.PartitionKey)
	if partition == "" {
		return port.RunListPage{}, fmt.Errorf("partition key is required")
	}

	limit := query.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	keyCondition := "#pk = :pk AND begins_with(#sk, :run)"
	input := &dynamodb.QueryInput{
		TableName:              &r.tableName,
		Limit:                  int32Pointer(int32(limit)),
		ScanIndexForward:       boolPointer(false),
		ConsistentRead:         boolPointer(r.strongReads),
		KeyConditionExpression: &keyCondition,
		ExpressionAttributeNames: map[string]string{
			"#pk": attrPK,
			"#sk": attrSK,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":  &types.AttributeValueMemberS{Value: buildPK(partition)},
			":run": &types.AttributeValueMemberS{Value: "RUN#"},
		},
	}

	if strings.TrimSpace(query.Cursor) != "" {
		exclusiveStartKey, err := decodeCursor(query.Cursor, partition)
		if err != nil {
			return port.RunListPage{}, err
		}
		input.ExclusiveStartKey = exclusiveStartKey
	}

	output, err := r.client.Query(ctx, input)
	if err != nil {
		return port.RunListPage{}, fmt.Errorf("dynamodb query failed: %w", err)
	}

	items := make([]port.RunRecord, 0, len(output.Items))
	for _, raw := range output.Items {
		item, err := fromItem(raw)
		if err != nil {
			return port.RunListPage{}, err
		}
		items = append(items, item)
	}

	nextCursor := ""
	if len(output.LastEvaluatedKey) > 0 {
		nextCursor, err = encodeCursor(output.LastEvaluatedKey, partition)
		if err != nil {
			return port.RunListPage{}, err
		}
	}

	return port.RunListPage{
		Items:      items,
		NextCursor: nextCursor,
	}, nil
}

func (r *RunIndexRepository) toItem(record port.RunRecord) (map[string]types.AttributeValue, error) {
	invocationID := strings.TrimSpace(record.InvocationID)
	partition := strings.TrimSpace(record.PartitionKey)
	if invocationID == "" {
		return nil, fmt.Errorf("invocation_id is required")
	}
	if partition == "" {
		return nil, fmt.Errorf("partition_key is required")
	}
	if record.Outcome == "" {
		return nil, fmt.Errorf("outcome is required")
	}

	startedAt := record.StartedAt.UTC()
	if startedAt.IsZero() {
		startedAt = r.now().UTC()
	}
	finishedAt := record.FinishedAt.UTC()
	if finishedAt.IsZero() {
		finishedAt = startedAt
	}
	startedAtMS := startedAt.UnixMilli()

	item := map[string]types.AttributeValue{
		attrPK:             &types.AttributeValueMemberS{Value: buildPK(partition)},
		attrSK:             &types.AttributeValueMemberS{Value: buildSK(startedAtMS, invocationID)},
		attrInvocationID:   &types.AttributeValueMemberS{Value: invocationID},
		attrPartitionKey:   &types.AttributeValueMemberS{Value: partition},
		attrOutcome:        &types.AttributeValueMemberS{Value: record.Outcome},
		attrRows:           numberValue(int64(record.Rows)),
		attrPages:          numberValue(int64(record.Pages)),
		attrMetricFailures: numberValue(int64(record.MetricFailures)),
		attrStartedAt:      numberValue(startedAtMS),
		attrFinishedAt:     numberValue(finishedAt.UnixMilli()),
		attrExpiresAt:      numberValue(startedAt.Add(r.runTTL).Unix()),
	}

	optional := map[string]string{
		attrObjectKey:    record.ObjectKey,
		attrLocation:     record.Location,
		attrStopReason:   record.StopReason,
		attrErrorKind:    record.ErrorKind,
		attrErrorMessage: record.ErrorMessage,
	}
	for name, value := range optional {
		if value = strings.TrimSpace(value); value != "" {
			item[name] = &types.AttributeValueMemberS{Value: value}
		}
	}

	return item, nil
}

func fromItem(item map[string]types.AttributeValue) (port.RunRecord, error) {
	invocationID, err := attrString(item, attrInvocationID)
	if err != nil {
		return port.RunRecord{}, err
	}
	partition, err := attrString(item, attrPartitionKey)
	if err != nil {
		return port.RunRecord{}, err
	}
	outcome, err := attrString(item, attrOutcome)
	if err != nil {
		return port.RunRecord{}, err
	}
	startedAtMS, err := attrInt64(item, attrStartedAt)
	if err != nil {
		return port.RunRecord{}, err
	}

	return port.RunRecord{
		InvocationID:   invocationID,
		PartitionKey:   partition,
		ObjectKey:      optionalString(item, attrObjectKey),
		Location:       optionalString(item, attrLocation),
		Outcome:        outcome,
		StopReason:     optionalString(item, attrStopReason),
		ErrorKind:      optionalString(item, attrErrorKind),
		ErrorMessage:   optionalString(item, attrErrorMessage),
		Rows:           int(optionalInt64(item, attrRows)),
		Pages:          int(optionalInt64(item, attrPages)),
		MetricFailures: int(optionalInt64(item, attrMetricFailures)),
		StartedAt:      time.UnixMilli(startedAtMS).UTC(),
		FinishedAt:     time.UnixMilli(optionalInt64(item, attrFinishedAt)).UTC(),
	}, nil
}

func buildPK(partition string) string {
	return "BUCKET#" + partition
}

func buildSK(startedAtMS int64, invocationID string) string {
	return fmt.Sprintf("RUN#%013d#%s", startedAtMS, invocationID)
}

func encodeCursor(key map[string]types.AttributeValue, partition string) (string, error) {
	values := make(map[string]cursorValue, len(key))
	for attributeName, raw := range key {
		switch value := raw.(type) {
		case *types.AttributeValueMemberS:
			values[attributeName] = cursorValue{S: value.Value}
		case *types.AttributeValueMemberN:
			values[attributeName] = cursorValue{N: value.Value}
		default:
			return "", fmt.Errorf("unsupported cursor attribute type for %s", attributeName)
		}
	}

	serialized, err := json.Marshal(cursorPayload{PartitionKey: partition, Key: values})
	if err != nil {
		return "", fmt.Errorf("failed to marshal cursor: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(serialized), nil
}

func decodeCursor(cursor, partition string) (map[string]types.AttributeValue, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor")
	}

	var payload cursorPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("invalid cursor")
	}
	if payload.PartitionKey != partition {
		return nil, fmt.Errorf("cursor does not match partition")
	}

	key := make(map[string]types.AttributeValue, len(payload.Key))
	for attributeName, value := range payload.Key {
		switch {
		case value.S != "":
			key[attributeName] = &types.AttributeValueMemberS{Value: value.S}
		case value.N != "":
			key[attributeName] = &types.AttributeValueMemberN{Value: value.N}
		default:
			return nil, fmt.Errorf("invalid cursor")
		}
	}

	return key, nil
}

func numberValue(v int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}
}

func attrString(item map[string]types.AttributeValue, name string) (string, error) {
	raw, ok := item[name]
	if !ok {
		return "", fmt.Errorf("missing attribute %s", name)
	}
	value, ok := raw.(*types.AttributeValueMemberS)
	if !ok || strings.TrimSpace(value.Value) == "" {
		return "", fmt.Errorf("invalid attribute %s", name)
	}
	return value.Value, nil
}

func optionalString(item map[string]types.AttributeValue, name string) string {
	value, ok := item[name].(*types.AttributeValueMemberS)
	if !ok {
		return ""
	}
	return value.Value
}

func attrInt64(item map[string]types.AttributeValue, name string) (int64, error) {
	raw, ok := item[name]
	if !ok {
		return 0, fmt.Errorf("missing attribute %s", name)
	}
	value, ok := raw.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("invalid attribute %s", name)
	}
	parsed, err := strconv.ParseInt(value.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid attribute %s: %w", name, err)
	}
	return parsed, nil
}

func optionalInt64(item map[string]types.AttributeValue, name string) int64 {
	value, ok := item[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0
	}
	parsed, err := strconv.ParseInt(value.Value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}

func boolPointer(v bool) *bool {
	return &v
}

func int32Pointer(v int32) *int32 {
	return &v
}
