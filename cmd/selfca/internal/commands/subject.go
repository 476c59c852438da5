package commands

import (
	"fmt"
	"os"

	"github.com/wolfeidau/selfca/internal/pki"
	"gopkg.in/yaml.v3"
)

// SubjectFlags set the certificate subject. Values given on the command line
// override those read from --subject-file.
type SubjectFlags struct {
	SubjectFile        string `help:"YAML file with subject fields" type:"path" env:"SELFCA_SUBJECT_FILE"`
	CommonName         string `help:"subject common name (CN)"`
	Country            string `help:"subject country (C)"`
	State              string `help:"subject state or province (ST)"`
	Locality           string `help:"subject locality (L)"`
	Organization       string `help:"subject organization (O)"`
	OrganizationalUnit string `help:"subject organizational unit (OU)"`
}

// Resolve merges the subject file with the flag values.
func (f SubjectFlags) Resolve() (pki.Subject, error) {
	var subject pki.Subject

	if f.SubjectFile != "" {
		data, err := os.ReadFile(f.SubjectFile)
		if err != nil {
			return pki.Subject{}, fmt.Errorf("failed to read subject file: %w", err)
		}
		if err := yaml.Unmarshal(data, &subject); err != nil {
			return pki.Subject{}, fmt.Errorf("failed to parse subject file %s: %w", f.SubjectFile, err)
		}
	}

	override(&subject.CommonName, f.CommonName)
	override(&subject.Country, f.Country)
	override(&subject.State, f.State)
	override(&subject.Locality, f.Locality)
	override(&subject.Organization, f.Organization)
	override(&subject.OrganizationalUnit, f.OrganizationalUnit)

	return subject, nil
}

func override(field *string, value string) {
	if value != "" {
		*field = value
	}
}
