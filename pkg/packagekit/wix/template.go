package wix

import (
	"strings"

	"github.com/clbanning/mxj"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

var (
	ErrMissingPlaceholder  = errors.New("placeholder missing from template")
	ErrLeftoverPlaceholder = errors.New("placeholder left in rendered template")
	ErrMalformedXML        = errors.New("rendered template is not well formed xml")
)

// Placeholder tokens in the installer template.
const (
	TokenProductGuid        = "@@PRODUCT_GUID@@"
	TokenProductVersion     = "@@PRODUCT_VERSION@@"
	TokenPidPlatform        = "@@PID_PLATFORM@@"
	TokenDefaultDestination = "@@DEFAULT_DESTINATION@@"
	TokenProductDestination = "@@PRODUCT_DESTINATION@@"
)

// TemplateValues are the computed values stamped into the template.
type TemplateValues struct {
	Version            string
	PidPlatform        string
	DefaultDestination string
	ProductDestination string
}

type templateOptions struct {
	newGuid func() string
}

type TemplateOpt func(*templateOptions)

// WithGuidGenerator overrides how product guids are minted.
func WithGuidGenerator(fn func() string) TemplateOpt {
	return func(to *templateOptions) {
		to.newGuid = fn
	}
}

// NewGuid returns a random, upper case guid, the form windows
// installer expects.
func NewGuid() string {
	return strings.ToUpper(uuid.New().String())
}

type substitution struct {
	token string
	value func() string
}

// Render replaces each placeholder, in order, once. The guid token is
// substituted twice, each time with a fresh guid, to fill the two guid
// slots in the template. A token that is absent when its turn comes is
// an error.
func Render(template []byte, values TemplateValues, opts ...TemplateOpt) ([]byte, error) {
	to := &templateOptions{
		newGuid: NewGuid,
	}
	for _, opt := range opts {
		opt(to)
	}

	fixed := func(s string) func() string {
		return func() string { return s }
	}

	substitutions := []substitution{
		{TokenProductGuid, to.newGuid},
		{TokenProductGuid, to.newGuid},
		{TokenProductVersion, fixed(values.Version)},
		{TokenPidPlatform, fixed(values.PidPlatform)},
		{TokenDefaultDestination, fixed(values.DefaultDestination)},
		{TokenProductDestination, fixed(values.ProductDestination)},
	}

	doc := string(template)
	for _, s := range substitutions {
		if !strings.Contains(doc, s.token) {
			return nil, errors.Wrap(ErrMissingPlaceholder, s.token)
		}
		doc = strings.Replace(doc, s.token, s.value(), 1)
	}

	for _, token := range []string{
		TokenProductGuid,
		TokenProductVersion,
		TokenPidPlatform,
		TokenDefaultDestination,
		TokenProductDestination,
	} {
		if strings.Contains(doc, token) {
			return nil, errors.Wrap(ErrLeftoverPlaceholder, token)
		}
	}

	if _, err := mxj.NewMapXml([]byte(doc)); err != nil {
		return nil, errors.Wrapf(ErrMalformedXML, "%s", err)
	}

	return []byte(doc), nil
}

// RenderFile reads the template at templatePath, renders it, and writes
// the result to outPath, replacing any existing file. Nothing is
// written unless rendering succeeds.
func RenderFile(fs afero.Fs, templatePath, outPath string, values TemplateValues, opts ...TemplateOpt) error {
	template, err := afero.ReadFile(fs, templatePath)
	if err != nil {
		return errors.Wrapf(err, "reading template %s", templatePath)
	}

	return WriteRendered(fs, template, outPath, values, opts...)
}

// WriteRendered is RenderFile for a template already in memory.
func WriteRendered(fs afero.Fs, template []byte, outPath string, values TemplateValues, opts ...TemplateOpt) error {
	rendered, err := Render(template, values, opts...)
	if err != nil {
		return err
	}

	if err := afero.WriteFile(fs, outPath, rendered, 0644); err != nil {
		// Don't leave a partial file behind
		fs.Remove(outPath)
		return errors.Wrapf(err, "writing %s", outPath)
	}

	return nil
}
