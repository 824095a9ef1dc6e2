package export

import (
	"context"
	"time"
)

// ModuleConfig is one module's deployment-specific configuration snapshot.
// Version is nil for legacy configs stored without a version.
type ModuleConfig struct {
	ID         string         `json:"id" bson:"id"`
	ModuleID   string         `json:"moduleId" bson:"moduleId"`
	ModuleName string         `json:"moduleName,omitempty" bson:"moduleName,omitempty"`
	Version    *int           `json:"version,omitempty" bson:"version,omitempty"`
	Body       map[string]any `json:"configBody,omitempty" bson:"configBody,omitempty"`
}

// Name returns the module name, falling back to the module id.
func (m ModuleConfig) Name() string {
	if m.ModuleName != "" {
		return m.ModuleName
	}
	return m.ModuleID
}

// ConsentForm identifies the current consent document of a deployment.
type ConsentForm struct {
	ID       string `json:"id" bson:"id"`
	Revision int    `json:"revision" bson:"revision"`
}

// Deployment is the live configuration of one study deployment.
type Deployment struct {
	ID             string                       `json:"id" bson:"id"`
	Name           string                       `json:"name" bson:"name"`
	OrganizationID string                       `json:"organizationId,omitempty" bson:"organizationId,omitempty"`
	Language       string                       `json:"language,omitempty" bson:"language,omitempty"`
	ModuleConfigs  []ModuleConfig               `json:"moduleConfigs" bson:"moduleConfigs"`
	Consent        *ConsentForm                 `json:"consent,omitempty" bson:"consent,omitempty"`
	EConsent       *ConsentForm                 `json:"econsent,omitempty" bson:"econsent,omitempty"`
	Localizations  map[string]map[string]string `json:"localizations,omitempty" bson:"localizations,omitempty"`
}

// ModuleNames returns the distinct module names configured on the deployment
// in configuration order.
func (d *Deployment) ModuleNames() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, mc := range d.ModuleConfigs {
		name := mc.Name()
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// Revision is a historical snapshot of a deployment's module configs.
type Revision struct {
	DeploymentID  string         `json:"deploymentId" bson:"deploymentId"`
	Version       int            `json:"version" bson:"version"`
	ModuleConfigs []ModuleConfig `json:"moduleConfigs" bson:"moduleConfigs"`
}

// PrimitiveQuery selects stored primitives for one module.
type PrimitiveQuery struct {
	ModuleName   string
	DeploymentID string
	From         *time.Time
	To           *time.Time
	UserIDs      []string

	// UseCreationTime filters on createDateTime instead of startDateTime.
	UseCreationTime bool
	// PartialOverlap matches when either startDateTime or endDateTime
	// falls within the range.
	PartialOverlap bool
}

// PrimitiveRepository retrieves stored primitives.
type PrimitiveRepository interface {
	RetrievePrimitives(ctx context.Context, query PrimitiveQuery) ([]map[string]any, error)
}

// UserRepository retrieves user profiles.
type UserRepository interface {
	RetrieveUsers(ctx context.Context, deploymentID string, userIDs []string) ([]map[string]any, error)
}

// ConsentRepository retrieves signed consent documents.
type ConsentRepository interface {
	RetrieveConsentLogs(ctx context.Context, consentID string, userIDs []string) ([]map[string]any, error)
	RetrieveEConsentLogs(ctx context.Context, econsentID string, userIDs []string) ([]map[string]any, error)
}

// DeploymentRepository retrieves deployments and their revisions.
type DeploymentRepository interface {
	RetrieveDeployment(ctx context.Context, deploymentID string) (*Deployment, error)
	RetrieveDeploymentIDs(ctx context.Context, organizationID string) ([]string, error)

	// RetrieveRevisionCovering returns the oldest revision whose module
	// configs contain configID at the given version. Returns a NotFoundError
	// when no revision matches.
	RetrieveRevisionCovering(ctx context.Context, deploymentID, configID string, version int) (*Revision, error)
}

// ProfileStore persists export profiles.
type ProfileStore interface {
	// CreateProfile inserts a profile. When the profile is default, the
	// previous default of the same scope is unset in the same transaction.
	CreateProfile(ctx context.Context, profile *Profile) error

	// UpdateProfile replaces a profile with the same default handling as create.
	UpdateProfile(ctx context.Context, profile *Profile) error

	GetProfile(ctx context.Context, id string) (*Profile, error)

	// FindProfile returns the profile named name within the scope.
	FindProfile(ctx context.Context, name, deploymentID, organizationID string) (*Profile, error)

	// DefaultProfile returns the scope's default profile or a NotFoundError.
	DefaultProfile(ctx context.Context, deploymentID, organizationID string) (*Profile, error)

	ListProfiles(ctx context.Context, deploymentID, organizationID string) ([]*Profile, error)
	DeleteProfile(ctx context.Context, id string) error
}

// ProcessUpdate carries the fields written by a status transition.
type ProcessUpdate struct {
	Status              ProcessStatus
	Result              ObjectRef
	Error               string
	ProcessingStartedAt *time.Time
}

// ProcessStore persists export processes.
type ProcessStore interface {
	CreateProcess(ctx context.Context, process *Process) error
	GetProcess(ctx context.Context, id string) (*Process, error)

	// TransitionProcess applies update only when the process is currently in
	// status from. It returns ErrConflict when the current status differs.
	TransitionProcess(ctx context.Context, id string, from ProcessStatus, update ProcessUpdate) error

	MarkSeen(ctx context.Context, id string) error
	ListProcesses(ctx context.Context, query ProcessQuery) ([]*Process, error)
	DeleteProcess(ctx context.Context, id string) error
}

// ObjectStorage is the external binary store.
type ObjectStorage interface {
	Download(ctx context.Context, bucket, key string) ([]byte, error)
	Upload(ctx context.Context, bucket, key string, data []byte) error
	Sign(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
	Exists(ctx context.Context, bucket, key string) (bool, error)
	Delete(ctx context.Context, bucket, key string) error
}

// Notifier delivers best-effort completion and failure notices.
type Notifier interface {
	ExportSucceeded(ctx context.Context, process *Process)
	ExportFailed(ctx context.Context, process *Process, err error)
}
