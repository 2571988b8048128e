package intake

import "fmt"

// Structured extraction payloads. Validate keeps model output inside sane
// bounds; anything over the cap triggers the repair/fallback path.

const maxFieldLen = 2000

// SubjectiveOut is the chief-complaint extraction result.
type SubjectiveOut struct {
	ChiefComplaint string `json:"chief_complaint"`
	OPQRST         OPQRST `json:"opqrst"`
	IsComplete     bool   `json:"is_complete"`
	Reply          string `json:"reply"`
}

func (o *SubjectiveOut) Validate() error {
	if err := fieldLen("chief_complaint", o.ChiefComplaint); err != nil {
		return err
	}
	for name, v := range map[string]string{
		"onset":       o.OPQRST.Onset,
		"provocation": o.OPQRST.Provocation,
		"quality":     o.OPQRST.Quality,
		"radiation":   o.OPQRST.Radiation,
		"severity":    o.OPQRST.Severity,
		"timing":      o.OPQRST.Timing,
	} {
		if err := fieldLen(name, v); err != nil {
			return err
		}
	}
	return fieldLen("reply", o.Reply)
}

// MedsOut is the medication-list extraction result.
type MedsOut struct {
	Medications []Medication `json:"medications"`
	Reply       string       `json:"reply"`
}

func (o *MedsOut) Validate() error {
	for _, m := range o.Medications {
		for name, v := range map[string]string{
			"name": m.Name, "dose": m.Dose, "freq": m.Freq, "last_taken": m.LastTaken,
		} {
			if err := fieldLen(name, v); err != nil {
				return err
			}
		}
	}
	return fieldLen("reply", o.Reply)
}

func fieldLen(name, v string) error {
	if len(v) > maxFieldLen {
		return fmt.Errorf("field %q exceeds %d characters", name, maxFieldLen)
	}
	return nil
}
