package orders

import "strings"

// Vendor export column headers.
const (
	ColumnOrderNo             = "Order No."
	ColumnSaleAmountUSD       = "Sale Amount(USD)"
	ColumnEstimatedCommission = "Estimated commission"
	ColumnConfirmedCommission = "Confirmed Commission"
	ColumnStatus              = "Status"
	ColumnDescription         = "Description"
	ColumnCreateTime          = "Create Time"
	ColumnPID                 = "pid"
	ColumnTrackingSource      = "tracking source"
	ColumnMediaID             = "media id"
	ColumnMedia               = "media"
	ColumnCustomize1ID        = "Customize1 ID"
	ColumnCustomize2ID        = "Customize2 ID"
	ColumnCountryRegion       = "Country/Region"
)

// Table attribute names.
const (
	attrOrderNo   = "order_no"
	attrFinalURL  = "final_url"
	attrCreatedAt = "created_at"
	attrUpdatedAt = "updated_at"
)

type columnMapping struct {
	column string
	attr   string
}

// dataColumns are the vendor columns copied on every upsert. Order matters
// only for building stable update expressions.
var dataColumns = []columnMapping{
	{ColumnSaleAmountUSD, "sale_amount_usd"},
	{ColumnEstimatedCommission, "estimated_commission"},
	{ColumnConfirmedCommission, "confirmed_commission"},
	{ColumnStatus, "status"},
	{ColumnDescription, "description"},
	{ColumnCreateTime, "create_time"},
	{ColumnPID, "pid"},
	{ColumnTrackingSource, "tracking_source"},
	{ColumnMediaID, "media_id"},
	{ColumnMedia, "media"},
	{ColumnCustomize1ID, "customize1_id"},
	{ColumnCustomize2ID, "customize2_id"},
	{ColumnCountryRegion, "country_region"},
}

// OrderNoOf returns the trimmed order number of a parsed export row.
func OrderNoOf(row map[string]string) string {
	return strings.TrimSpace(row[ColumnOrderNo])
}
