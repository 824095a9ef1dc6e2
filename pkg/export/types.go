package export

import (
	"fmt"
	"slices"
	"time"
)

// View selects the key records are grouped under before rendering.
type View string

const (
	ViewUser         View = "USER"
	ViewDay          View = "DAY"
	ViewModuleConfig View = "MODULE_CONFIG"
	ViewSingle       View = "SINGLE"
)

// Validate reports whether the view is a known value.
func (v View) Validate() error {
	switch v {
	case ViewUser, ViewDay, ViewModuleConfig, ViewSingle:
		return nil
	default:
		return fmt.Errorf("unknown view %q", string(v))
	}
}

// Layer controls whether view keys become folders (NESTED) or files (FLAT).
type Layer string

const (
	LayerFlat   Layer = "FLAT"
	LayerNested Layer = "NESTED"
)

// Validate reports whether the layer is a known value.
func (l Layer) Validate() error {
	switch l {
	case LayerFlat, LayerNested:
		return nil
	default:
		return fmt.Errorf("unknown layer %q", string(l))
	}
}

// Quantity controls how many files one view key produces.
type Quantity string

const (
	QuantitySingle   Quantity = "SINGLE"
	QuantityMultiple Quantity = "MULTIPLE"
)

// Validate reports whether the quantity is a known value.
func (q Quantity) Validate() error {
	switch q {
	case QuantitySingle, QuantityMultiple:
		return nil
	default:
		return fmt.Errorf("unknown quantity %q", string(q))
	}
}

// Format is the rendering format of output files.
type Format string

const (
	FormatJSON    Format = "JSON"
	FormatCSV     Format = "CSV"
	FormatJSONCSV Format = "JSON_CSV"
)

// Validate reports whether the format is a known value.
func (f Format) Validate() error {
	switch f {
	case FormatJSON, FormatCSV, FormatJSONCSV:
		return nil
	default:
		return fmt.Errorf("unknown format %q", string(f))
	}
}

// Renderings expands the format into the concrete file formats it produces.
func (f Format) Renderings() []Format {
	switch f {
	case FormatJSONCSV:
		return []Format{FormatJSON, FormatCSV}
	case FormatCSV:
		return []Format{FormatCSV}
	default:
		return []Format{FormatJSON}
	}
}

// BinaryOption controls how externally stored binary fields are exported.
type BinaryOption string

const (
	// BinaryNone leaves the stored object reference untouched.
	BinaryNone BinaryOption = "NONE"
	// BinarySignedURL replaces the reference with a signed download URL.
	BinarySignedURL BinaryOption = "SIGNED_URL"
	// BinaryEmbed downloads the object into the archive and references its path.
	BinaryEmbed BinaryOption = "BINARY"
)

// Validate reports whether the binary option is a known value.
func (b BinaryOption) Validate() error {
	switch b {
	case BinaryNone, BinarySignedURL, BinaryEmbed:
		return nil
	default:
		return fmt.Errorf("unknown binary option %q", string(b))
	}
}

// ExportType distinguishes deployment-wide exports from per-user artifacts.
type ExportType string

const (
	ExportTypeDefault       ExportType = "DEFAULT"
	ExportTypeUser          ExportType = "USER"
	ExportTypeSummaryReport ExportType = "SUMMARY_REPORT"
)

// Scope identifies which deployments an export or profile covers.
// Exactly one of the three fields is expected to be set.
type Scope struct {
	DeploymentID   string   `json:"deploymentId,omitempty"`
	DeploymentIDs  []string `json:"deploymentIds,omitempty"`
	OrganizationID string   `json:"organizationId,omitempty"`
}

// IsEmpty reports whether no scope field is set.
func (s Scope) IsEmpty() bool {
	return s.DeploymentID == "" && len(s.DeploymentIDs) == 0 && s.OrganizationID == ""
}

// kinds returns how many scope kinds are set.
func (s Scope) kinds() int {
	n := 0
	if s.DeploymentID != "" {
		n++
	}
	if len(s.DeploymentIDs) > 0 {
		n++
	}
	if s.OrganizationID != "" {
		n++
	}
	return n
}

// Validate checks that exactly one scope kind is given.
func (s Scope) Validate() error {
	switch s.kinds() {
	case 0:
		return NewValidationError("scope", "one of deploymentId, deploymentIds or organizationId is required")
	case 1:
		return nil
	default:
		return NewValidationError("scope", "deploymentId, deploymentIds and organizationId are mutually exclusive")
	}
}

// Request is the resolved, immutable configuration of one export run.
// It is always passed by value; the resolver owns the backing slices.
type Request struct {
	Scope Scope `json:"-"`

	FromDate *time.Time `json:"fromDate,omitempty"`
	ToDate   *time.Time `json:"toDate,omitempty"`

	View     View         `json:"view"`
	Layer    Layer        `json:"layer"`
	Quantity Quantity     `json:"quantity"`
	Format   Format       `json:"format"`
	Binary   BinaryOption `json:"binaryOption"`

	ModuleNames         []string `json:"moduleNames,omitempty"`
	ExcludedModuleNames []string `json:"excludedModuleNames,omitempty"`
	UserIDs             []string `json:"userIds,omitempty"`

	IncludeFields []string `json:"includeFields,omitempty"`
	ExcludeFields []string `json:"excludeFields,omitempty"`

	Deidentified           bool     `json:"deIdentified"`
	DeidentifyRemoveFields []string `json:"deIdentifyRemoveFields,omitempty"`
	DeidentifyHashFields   []string `json:"deIdentifyHashFields,omitempty"`

	Translate             bool `json:"translatePrimitives"`
	TranslationShortCodes bool `json:"translationShortCodesObjectFormat"`
	QuestionShortCodes    bool `json:"useQuestionnaireShortCodes"`
	UseFlatStructure      bool `json:"useFlatStructure"`
	IncludeNullFields     bool `json:"includeNullFields"`
	IncludeUserMetaData   bool `json:"includeUserMetaData"`
	UseCreationTime       bool `json:"useCreationTime"`
	SplitMultipleChoices  bool `json:"splitMultipleChoices"`
	SplitByQuestionnaire  bool `json:"splitByQuestionnaire"`
	OnlyConsented         bool `json:"excludeNotConsented"`

	OnboardingModuleNames []string `json:"onboardingModuleNames,omitempty"`

	SingleFileResponse bool `json:"singleFileResponse"`
}

// Validate checks enum fields and the date range.
func (r Request) Validate() error {
	if err := r.Scope.Validate(); err != nil {
		return err
	}
	checks := []struct {
		field string
		err   error
	}{
		{"view", r.View.Validate()},
		{"layer", r.Layer.Validate()},
		{"quantity", r.Quantity.Validate()},
		{"format", r.Format.Validate()},
		{"binaryOption", r.Binary.Validate()},
	}
	for _, c := range checks {
		if c.err != nil {
			return NewValidationError(c.field, c.err.Error())
		}
	}
	if r.FromDate != nil && r.ToDate != nil && r.FromDate.After(*r.ToDate) {
		return NewValidationError("fromDate", "fromDate must not be after toDate")
	}
	return nil
}

// IncludesModule reports whether the module passes the include/exclude filters.
func (r Request) IncludesModule(name string) bool {
	if len(r.ModuleNames) > 0 && !slices.Contains(r.ModuleNames, name) {
		return false
	}
	return !slices.Contains(r.ExcludedModuleNames, name)
}

// IncludesOnboarding reports whether an onboarding module was requested.
func (r Request) IncludesOnboarding(name string) bool {
	return slices.Contains(r.OnboardingModuleNames, name)
}

// CollapsesToSingleUnit reports whether the configuration always produces
// exactly one (view, format) output unit for deploymentCount deployments.
func (r Request) CollapsesToSingleUnit(deploymentCount int) bool {
	if deploymentCount != 1 {
		return false
	}
	if len(r.Format.Renderings()) != 1 {
		return false
	}
	if r.Binary == BinaryEmbed {
		return false
	}
	if r.Quantity != QuantitySingle {
		return false
	}
	switch r.Layer {
	case LayerFlat:
		return true
	case LayerNested:
		return r.View == ViewSingle
	default:
		return false
	}
}

// DefaultDeidentifyRemoveFields are nulled when de-identification is enabled
// and no profile overrides the list.
var DefaultDeidentifyRemoveFields = []string{
	"user.givenName",
	"user.familyName",
	"user.email",
	"user.phoneNumber",
	"user.dateOfBirth",
	"user.additionalContactDetails",
	"user.emergencyPhoneNumber",
	"user.primaryAddress",
	"user.familyMedicalHistory",
	"user.pastHistory",
	"user.presentSymptoms",
	"user.personalHistory",
	"user.consent.givenName",
	"user.consent.familyName",
	"user.consent.signature",
	"user.econsent.givenName",
	"user.econsent.familyName",
	"user.econsent.signature",
	"user.econsent.additionalConsentAnswers",
	"Consent.givenName",
	"Consent.familyName",
	"Consent.signature",
	"EConsent.givenName",
	"EConsent.familyName",
	"EConsent.signature",
	"EConsent.additionalConsentAnswers",
}

// DefaultDeidentifyHashFields are replaced with a one-way hash when
// de-identification is enabled and no profile overrides the list.
var DefaultDeidentifyHashFields = []string{
	"id",
	"userId",
	"deploymentId",
	"user.id",
	"user.consent.userId",
	"user.econsent.userId",
}

// ProfileOnlyFields may only be supplied through an export profile.
var ProfileOnlyFields = []string{
	"deIdentifyRemoveFields",
	"deIdentifyHashFields",
}

// DefaultRequestParams are the baseline values every request starts from.
func DefaultRequestParams() map[string]any {
	return map[string]any{
		"view":              string(ViewModuleConfig),
		"layer":             string(LayerNested),
		"quantity":          string(QuantityMultiple),
		"format":            string(FormatJSON),
		"binaryOption":      string(BinaryNone),
		"includeNullFields": true,
	}
}

// File is one rendered output unit or side file.
type File struct {
	Path    string
	Content []byte
}

// Profile is a named, reusable export configuration scoped to exactly one
// deployment or organization.
type Profile struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	DeploymentID   string         `json:"deploymentId,omitempty"`
	OrganizationID string         `json:"organizationId,omitempty"`
	Content        map[string]any `json:"content"`
	Default        bool           `json:"default"`
	CreateDateTime time.Time      `json:"createDateTime"`
	UpdateDateTime time.Time      `json:"updateDateTime"`
}

// ValidateScope checks the profile belongs to exactly one scope.
func (p *Profile) ValidateScope() error {
	if (p.DeploymentID == "") == (p.OrganizationID == "") {
		return NewValidationError("scope", "profile must belong to exactly one deployment or organization")
	}
	return nil
}

// ProcessStatus is the lifecycle state of a background export.
type ProcessStatus string

const (
	StatusCreated    ProcessStatus = "CREATED"
	StatusProcessing ProcessStatus = "PROCESSING"
	StatusDone       ProcessStatus = "DONE"
	StatusError      ProcessStatus = "ERROR"
)

// ObjectRef locates an object in external storage.
type ObjectRef struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// IsZero reports whether the reference is empty.
func (o ObjectRef) IsZero() bool {
	return o.Bucket == "" && o.Key == ""
}

// Process is the persisted state of one asynchronous export job.
type Process struct {
	ID                  string         `json:"id"`
	Status              ProcessStatus  `json:"status"`
	ExportType          ExportType     `json:"exportType"`
	RequesterID         string         `json:"requesterId"`
	DeploymentID        string         `json:"deploymentId,omitempty"`
	OrganizationID      string         `json:"organizationId,omitempty"`
	Params              map[string]any `json:"params,omitempty"`
	Result              ObjectRef      `json:"result"`
	Seen                bool           `json:"seen"`
	Error               string         `json:"error,omitempty"`
	CreateDateTime      time.Time      `json:"createDateTime"`
	UpdateDateTime      time.Time      `json:"updateDateTime"`
	ProcessingStartedAt *time.Time     `json:"processingStartedAt,omitempty"`
}

// ProcessQuery filters processes.
type ProcessQuery struct {
	RequesterID    string
	DeploymentID   string
	OrganizationID string
	Statuses       []ProcessStatus
	ExportTypes    []ExportType

	// UpdatedBefore matches processes last updated strictly before the time.
	UpdatedBefore *time.Time
	// ProcessingStartedBefore matches processes that entered PROCESSING before the time.
	ProcessingStartedBefore *time.Time

	Limit int
}
