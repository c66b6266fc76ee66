package validation

// DateLayout is the wire format of export window dates.
const DateLayout = "2006-01-02"

// ExportWindow is the date range sent to the vendor export endpoint.
type ExportWindow struct {
	BeginDate string `json:"beginDate" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"endDate" validate:"required,datetime=2006-01-02"`
}

// UnresolvedQuery is the query string accepted by GET /orders/unresolved.
type UnresolvedQuery struct {
	Limit int `form:"limit" validate:"omitempty,min=1,max=500"` // 0 means the server default
}
