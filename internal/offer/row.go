package offer

import (
	"encoding/json"

	"offermart/pkg/errors"
	"offermart/pkg/models"
)

// Row is one raw offer row as supplied by the Offermart feed, before
// it becomes a Record fact.
type Row struct {
	SourceSystem     string  `json:"source_system"`
	IncomingRecordID string  `json:"incoming_record_id"`
	CustomerID       string  `json:"customer_id"`
	PAN              string  `json:"pan"`
	Mobile           string  `json:"mobile"`
	Email            string  `json:"email"`
	ProductType      string  `json:"product_type"`
	OfferID          string  `json:"offer_id"`
	LoanAmount       float64 `json:"loan_amount"`
	TenureMonths     int     `json:"tenure_months"`
	CampaignID       string  `json:"campaign_id"`
}

// ToRecord turns a raw row into a PENDING fact. The product type is
// normalized but never rejected here: structural problems are for the
// validation rule set to report, not for ingestion to drop.
func (row Row) ToRecord() *Record {
	rec := NewRecord(row.SourceSystem, row.IncomingRecordID)
	rec.CustomerID = row.CustomerID
	rec.PAN = row.PAN
	rec.Mobile = row.Mobile
	rec.Email = row.Email
	rec.OfferID = row.OfferID
	rec.LoanAmount = row.LoanAmount
	rec.TenureMonths = row.TenureMonths
	rec.CampaignID = row.CampaignID

	productType, _ := ParseProductType(row.ProductType)
	rec.ProductType = productType

	return rec
}

// ParseRows decodes the batch of raw rows carried by one feed message.
// A message whose payload cannot decode is permanently rejected.
func ParseRows(envelope models.MessageEnvelope) ([]Row, error) {
	rawRows, ok := envelope.Payload["rows"]
	if !ok {
		return nil, errors.ErrMalformedEvent.
			WithDetail("message", "payload is missing 'rows'").
			AsFatal()
	}

	raw, err := json.Marshal(rawRows)
	if err != nil {
		return nil, errors.ErrMalformedEvent.WithCause(err).AsFatal()
	}

	var rows []Row
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, errors.ErrMalformedEvent.WithCause(err).AsFatal()
	}

	for i := range rows {
		if rows[i].SourceSystem == "" {
			rows[i].SourceSystem = envelope.Source
		}
	}

	return rows, nil
}
