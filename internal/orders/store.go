package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/affiliate-orderflow/internal/aws"
)

const conditionalCheckFailedCode = "ConditionalCheckFailedException"

// Store is the order ledger on top of a DynamoDB table keyed by order_no.
// Every call is a self-contained request; nothing spans a run.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
	log       zerolog.Logger
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName string, log zerolog.Logger) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
		log:       log.With().Str("component", "orders_store").Str("table", tableName).Logger(),
	}
}

func keyOf(orderNo string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrOrderNo: &types.AttributeValueMemberS{Value: orderNo},
	}
}

func (s *Store) timestamp() string {
	return s.nowFunc().UTC().Format(time.RFC3339Nano)
}

// upsertInput builds one UpdateItem that writes every data column, bumps
// updated_at, sets created_at only on insert and leaves final_url alone.
func (s *Store) upsertInput(orderNo string, row map[string]string, now string) *dyn.UpdateItemInput {
	names := map[string]string{
		"#ua": attrUpdatedAt,
		"#ca": attrCreatedAt,
	}
	values := map[string]types.AttributeValue{
		":now": &types.AttributeValueMemberS{Value: now},
	}
	sets := make([]string, 0, len(dataColumns)+2)
	for i, c := range dataColumns {
		n, v := fmt.Sprintf("#f%d", i), fmt.Sprintf(":f%d", i)
		names[n] = c.attr
		values[v] = &types.AttributeValueMemberS{Value: row[c.column]}
		sets = append(sets, n+" = "+v)
	}
	sets = append(sets, "#ua = :now", "#ca = if_not_exists(#ca, :now)")

	return &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       keyOf(orderNo),
		UpdateExpression:          awsString("SET " + strings.Join(sets, ", ")),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllOld,
	}
}

// UpsertBatch writes parsed export rows keyed by their order number. Rows
// without one are skipped. A failed row does not stop the batch; all row
// errors are joined into the returned error.
func (s *Store) UpsertBatch(ctx context.Context, rows []map[string]string) (UpsertResult, error) {
	var res UpsertResult
	var errs []error
	now := s.timestamp()

	for _, row := range rows {
		orderNo := OrderNoOf(row)
		if orderNo == "" {
			res.Skipped++
			continue
		}
		out, err := s.client.UpdateItem(ctx, s.upsertInput(orderNo, row, now))
		if err != nil {
			res.Failed++
			s.log.Error().Err(err).Str("order_no", orderNo).Msg("upsert failed")
			errs = append(errs, fmt.Errorf("upsert %s: %w", orderNo, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if len(out.Attributes) == 0 {
			res.Inserted++
		} else {
			res.Updated++
		}
	}

	s.log.Info().
		Int("inserted", res.Inserted).
		Int("updated", res.Updated).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("ledger updated")
	return res, errors.Join(errs...)
}

// Unresolved returns every order without a final URL, highest order number
// first.
func (s *Store) Unresolved(ctx context.Context) ([]Order, error) {
	p := dyn.NewScanPaginator(s.client, &dyn.ScanInput{
		TableName:                &s.tableName,
		FilterExpression:         awsString("attribute_not_exists(#fu)"),
		ExpressionAttributeNames: map[string]string{"#fu": attrFinalURL},
	})

	var out []Order
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan unresolved: %w", err)
		}
		var batch []Order
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal orders: %w", err)
		}
		out = append(out, batch...)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderNo > out[j].OrderNo })
	return out, nil
}

// SetFinalURL records the resolved destination of an order. It only applies
// when the order exists and has no final URL yet; otherwise it logs and
// returns applied=false with a nil error.
func (s *Store) SetFinalURL(ctx context.Context, orderNo, finalURL string) (bool, error) {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              keyOf(orderNo),
		UpdateExpression: awsString("SET #fu = :fu, #ua = :now"),
		ExpressionAttributeNames: map[string]string{
			"#pk": attrOrderNo,
			"#fu": attrFinalURL,
			"#ua": attrUpdatedAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":fu":  &types.AttributeValueMemberS{Value: finalURL},
			":now": &types.AttributeValueMemberS{Value: s.timestamp()},
		},
		ConditionExpression: awsString("attribute_exists(#pk) AND attribute_not_exists(#fu)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			s.log.Warn().Str("order_no", orderNo).Msg("order missing or already resolved, final url not written")
			return false, nil
		}
		return false, fmt.Errorf("set final url for %s: %w", orderNo, err)
	}
	return true, nil
}

// Get fetches an order by order number. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderNo string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       keyOf(orderNo),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// IsEmpty reports whether the table holds no orders at all.
func (s *Store) IsEmpty(ctx context.Context) (bool, error) {
	out, err := s.client.Scan(ctx, &dyn.ScanInput{
		TableName:                &s.tableName,
		Limit:                    awsInt32(1),
		ProjectionExpression:     awsString("#pk"),
		ExpressionAttributeNames: map[string]string{"#pk": attrOrderNo},
	})
	if err != nil {
		return false, fmt.Errorf("scan for any order: %w", err)
	}
	return len(out.Items) == 0, nil
}

func isConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == conditionalCheckFailedCode
}

func awsString(s string) *string { return &s }

func awsInt32(v int32) *int32 { return &v }
