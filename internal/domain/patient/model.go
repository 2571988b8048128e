package patient

// Patient is a stored record from prior visits, used to prefill intake
// demographics.
type Patient struct {
	PatientID string `json:"patient_id"`
	Name      string `json:"name"`
	History   string `json:"history"`
	Data      Data   `json:"data"`
}

// Data is the structured portion of a stored record.
type Data struct {
	Identity      ContactInfo `json:"identity"`
	Allergies     []string    `json:"allergies"`
	Medications   []string    `json:"medications"`
	PMH           []string    `json:"pmh"`
	RecentResults []string    `json:"recent_results"`
}

// ContactInfo is the stored contact details. Date of birth is deliberately
// absent: stored records only carry what a front desk can verify over the
// phone.
type ContactInfo struct {
	Phone   string `json:"phone"`
	Address string `json:"address"`
}
