package patient

import (
	"context"

	"github.com/rs/zerolog"
)

// demoPrefix marks seeded records so reseeding only touches demo data.
const demoPrefix = "demo-"

var demoPatients = []Patient{
	{
		PatientID: "demo-ava",
		Name:      "Ava Johnson",
		History:   "Prior visit: Hypertension. Penicillin allergy.",
		Data: Data{
			Identity: ContactInfo{
				Phone:   "4125550199",
				Address: "100 Forbes Ave, Pittsburgh, PA",
			},
			Allergies:     []string{"penicillin"},
			Medications:   []string{"lisinopril 10mg daily (last dose: this morning)"},
			PMH:           []string{"hypertension"},
			RecentResults: []string{"CBC normal (2025-11-10)"},
		},
	},
	{
		PatientID: "demo-marcus",
		Name:      "Marcus Thorne",
		History:   "Prior cardiac stent placement in 2023.",
		Data: Data{
			Identity: ContactInfo{
				Phone:   "5550388844",
				Address: "12 Market St, Pittsburgh, PA",
			},
			Allergies:     []string{},
			Medications:   []string{"atorvastatin 40mg nightly"},
			PMH:           []string{"coronary artery disease", "cardiac stent (2023)"},
			RecentResults: []string{},
		},
	},
	{
		PatientID: "demo-nina",
		Name:      "Nina Shah",
		History:   "Prior visit: Anxiety. No known drug allergies.",
		Data: Data{
			Identity: ContactInfo{
				Phone:   "5557772222",
				Address: "44 Walnut St, Chicago, IL",
			},
			Allergies:     []string{},
			Medications:   []string{},
			PMH:           []string{"anxiety"},
			RecentResults: []string{},
		},
	},
}

// Seed replaces the demo patient records. Real records are untouched.
func Seed(ctx context.Context, repo Repository, logger zerolog.Logger) error {
	if err := repo.DeleteByPrefix(ctx, demoPrefix); err != nil {
		return err
	}
	for i := range demoPatients {
		p := demoPatients[i]
		if err := repo.Upsert(ctx, &p); err != nil {
			return err
		}
		logger.Info().Str("patient_id", p.PatientID).Str("name", p.Name).Msg("patient_seeded")
	}
	return nil
}
