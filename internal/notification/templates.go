package notification

import (
	"bytes"
	"fmt"
	"html/template"
)

var (
	adherenceAlertTmpl = template.Must(template.New("adherence_alert").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #d32f2f;">Medication adherence alert</h2>
  <p>Dear Doctor,</p>
  <div style="background-color: #fff3e0; padding: 15px; border-left: 4px solid #ff9800; margin: 15px 0;">
    <p><strong>Patient:</strong> {{.PatientName}}</p>
    <p><strong>Medication:</strong> {{.MedicationName}}</p>
    <p><strong>Status:</strong> Dose not taken as scheduled</p>
    <p><strong>Date:</strong> {{.Date}}</p>
  </div>
  <p>Please review the patient's adherence record and follow up as needed.</p>
  <hr style="margin: 20px 0; border: none; border-top: 1px solid #eee;">
  <p style="font-size: 12px; color: #666;">Glaucoma Management System</p>
</div>
`))

	appointmentReminderTmpl = template.Must(template.New("appointment_reminder").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #1976d2;">Appointment reminder</h2>
  <p>Dear Doctor,</p>
  <div style="background-color: #e3f2fd; padding: 15px; border-left: 4px solid #2196f3; margin: 15px 0;">
    <p><strong>Patient:</strong> {{.PatientName}}</p>
    <p><strong>Date:</strong> {{.Date}}</p>
    <p><strong>Time:</strong> {{.Time}}</p>
  </div>
  <p>This is a reminder of your patient's appointment tomorrow.</p>
  <hr style="margin: 20px 0; border: none; border-top: 1px solid #eee;">
  <p style="font-size: 12px; color: #666;">Glaucoma Management System</p>
</div>
`))
)

// AdherenceAlertEmail renders the missed-dose email.
func AdherenceAlertEmail(to, patientName, medicationName, date string) (Email, error) {
	var body bytes.Buffer
	err := adherenceAlertTmpl.Execute(&body, struct {
		PatientName, MedicationName, Date string
	}{patientName, medicationName, date})
	if err != nil {
		return Email{}, fmt.Errorf("render adherence alert: %w", err)
	}
	return Email{
		To:      to,
		Subject: fmt.Sprintf("Alert: patient %s did not take %s as scheduled", patientName, medicationName),
		HTML:    body.String(),
	}, nil
}

// AppointmentReminderEmail renders the next-day appointment email.
func AppointmentReminderEmail(to, patientName, date, clock string) (Email, error) {
	var body bytes.Buffer
	err := appointmentReminderTmpl.Execute(&body, struct {
		PatientName, Date, Time string
	}{patientName, date, clock})
	if err != nil {
		return Email{}, fmt.Errorf("render appointment reminder: %w", err)
	}
	return Email{
		To:      to,
		Subject: fmt.Sprintf("Appointment reminder: %s", patientName),
		HTML:    body.String(),
	}, nil
}
