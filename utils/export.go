package utils

import (
	"encoding/csv"
	"encoding/json"
	"io"

	"leadpilot/models"
)

var leadCSVHeader = []string{
	"name", "category", "address", "phone", "website", "rating",
	"reviews_count", "google_maps_url", "nicho", "ai_analysis",
}

// WriteLeadsCSV writes one header row and one row per lead.
func WriteLeadsCSV(w io.Writer, leads []models.Lead) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(leadCSVHeader); err != nil {
		return err
	}
	for _, l := range leads {
		row := []string{
			l.Name, l.Category, l.Address, l.Phone, l.Website, l.Rating,
			l.ReviewsCount, l.GoogleMapsURL, l.Niche, l.Message,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteLeadsJSON writes the leads as an indented JSON array.
func WriteLeadsJSON(w io.Writer, leads []models.Lead) error {
	if leads == nil {
		leads = []models.Lead{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(leads)
}
