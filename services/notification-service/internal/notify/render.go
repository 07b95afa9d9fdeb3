package notify

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/knocktern/hospital-booking/libs/events"
)

// content is what a patient receives for one event.
type content struct {
	Email   string
	Phone   string
	Subject string
	Body    string
	SMS     string
}

func render(eventType string, payload []byte) (content, bool, error) {
	switch eventType {
	case events.AppointmentBooked, events.AppointmentRescheduled, events.AppointmentStatus,
		events.AppointmentCancelled, events.AppointmentPaid:
		var a events.Appointment
		if err := json.Unmarshal(payload, &a); err != nil {
			return content{}, false, fmt.Errorf("decode %s: %w", eventType, err)
		}
		return renderAppointment(eventType, a), true, nil
	case events.RequestCreated, events.RequestApproved, events.RequestRejected, events.RequestExpired:
		var r events.Request
		if err := json.Unmarshal(payload, &r); err != nil {
			return content{}, false, fmt.Errorf("decode %s: %w", eventType, err)
		}
		return renderRequest(eventType, r), true, nil
	}
	return content{}, false, nil
}

func renderAppointment(eventType string, a events.Appointment) content {
	c := content{Email: a.PatientEmail, Phone: a.PatientPhone}
	when := fmt.Sprintf("%s at %s", a.Date, a.Time)
	doctor := doctorLabel(a.DoctorName, a.Department)

	var lines []string
	switch eventType {
	case events.AppointmentBooked:
		c.Subject = "Appointment confirmed"
		lines = []string{fmt.Sprintf("Your appointment with %s is booked for %s.", doctor, when)}
	case events.AppointmentRescheduled:
		c.Subject = "Appointment rescheduled"
		lines = []string{fmt.Sprintf("Your appointment with %s has moved from %s at %s to %s.", doctor, a.PreviousDate, a.PreviousTime, when)}
	case events.AppointmentCancelled:
		c.Subject = "Appointment cancelled"
		lines = []string{fmt.Sprintf("Your appointment with %s on %s has been cancelled.", doctor, when)}
	case events.AppointmentPaid:
		c.Subject = "Payment received"
		lines = []string{fmt.Sprintf("We received the consultation fee for your appointment with %s on %s.", doctor, when)}
	default:
		switch a.Status {
		case "completed":
			c.Subject = "Thank you for your visit"
			lines = []string{fmt.Sprintf("Your appointment with %s on %s is marked completed.", doctor, when)}
		case "no_show":
			c.Subject = "Missed appointment"
			lines = []string{
				fmt.Sprintf("You were marked absent for your appointment with %s on %s.", doctor, when),
				"Please submit a new request if you still need a consultation.",
			}
		default:
			c.Subject = "Appointment updated"
			lines = []string{fmt.Sprintf("Your appointment with %s on %s is now %s.", doctor, when, a.Status)}
		}
	}
	c.Body = letter(a.PatientName, lines)
	c.SMS = fmt.Sprintf("%s: %s, %s.", c.Subject, doctor, when)
	return c
}

func renderRequest(eventType string, r events.Request) content {
	c := content{Email: r.PatientEmail}
	when := fmt.Sprintf("%s at %s", r.Date, r.Time)
	doctor := doctorLabel(r.DoctorName, "")

	var lines []string
	switch eventType {
	case events.RequestCreated:
		c.Subject = "Appointment request received"
		lines = []string{fmt.Sprintf("We received your request to see %s on %s. A manager will review it shortly.", doctor, when)}
	case events.RequestApproved:
		c.Subject = "Appointment request approved"
		lines = []string{fmt.Sprintf("Your request to see %s on %s was approved and the appointment is booked.", doctor, when)}
	case events.RequestRejected:
		c.Subject = "Appointment request declined"
		lines = []string{fmt.Sprintf("Your request to see %s on %s could not be accepted.", doctor, when)}
	case events.RequestExpired:
		c.Subject = "Appointment request expired"
		lines = []string{fmt.Sprintf("Your request to see %s on %s expired before it was reviewed.", doctor, when)}
	}
	if resp := strings.TrimSpace(r.Response); resp != "" {
		lines = append(lines, "Message from the hospital: "+resp)
	}
	c.Body = letter(r.PatientName, lines)
	return c
}

func doctorLabel(name, department string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "your doctor"
	} else {
		name = "Dr. " + name
	}
	if department = strings.TrimSpace(department); department != "" {
		name += " (" + department + ")"
	}
	return name
}

func letter(name string, lines []string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "patient"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", name)
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\n")
	}
	b.WriteString("\nHospital appointments desk\n")
	return b.String()
}
