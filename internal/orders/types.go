package orders

import "time"

// Order is one vendor order as stored in the orders table.
//
// Monetary fields keep the vendor's formatting; they are locale sensitive
// and never parsed as numbers.
type Order struct {
	OrderNo             string    `dynamodbav:"order_no" json:"order_no"` // PK
	SaleAmountUSD       string    `dynamodbav:"sale_amount_usd" json:"sale_amount_usd"`
	EstimatedCommission string    `dynamodbav:"estimated_commission" json:"estimated_commission"`
	ConfirmedCommission string    `dynamodbav:"confirmed_commission" json:"confirmed_commission"`
	Status              string    `dynamodbav:"status" json:"status"`
	Description         string    `dynamodbav:"description" json:"description"`
	CreateTime          string    `dynamodbav:"create_time" json:"create_time"` // vendor supplied
	PID                 string    `dynamodbav:"pid" json:"pid"`
	TrackingSource      string    `dynamodbav:"tracking_source" json:"tracking_source"`
	MediaID             string    `dynamodbav:"media_id" json:"media_id"`
	Media               string    `dynamodbav:"media" json:"media"`
	Customize1ID        string    `dynamodbav:"customize1_id" json:"customize1_id"`
	Customize2ID        string    `dynamodbav:"customize2_id" json:"customize2_id"`
	CountryRegion       string    `dynamodbav:"country_region" json:"country_region"`
	FinalURL            *string   `dynamodbav:"final_url,omitempty" json:"final_url"`
	CreatedAt           time.Time `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt           time.Time `dynamodbav:"updated_at" json:"updated_at"`
}

// Resolved reports whether a final URL has been recorded.
func (o *Order) Resolved() bool {
	return o.FinalURL != nil && *o.FinalURL != ""
}

// UpsertResult counts what one UpsertBatch call did.
type UpsertResult struct {
	Inserted int
	Updated  int
	Skipped  int
	Failed   int
}
