// Package mongo implements the export engine's document-store repositories
// on MongoDB: primitives, users, consent and e-consent logs, deployments and
// deployment revisions.
//
// Primitives live in one collection per module, named after the module in
// lower case. Documents are returned as plain JSON-like maps: ObjectIDs
// become hex strings, datetimes RFC 3339 strings and "_id" is exposed as
// "id".
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"cohortline/exportd/pkg/config"
	"cohortline/exportd/pkg/export"
)

const backend = "mongo"

// Collections names the collections the store reads.
type Collections struct {
	Users        string
	ConsentLogs  string
	EConsentLogs string
	Deployments  string
	Revisions    string
}

// DefaultCollections returns the standard collection names.
func DefaultCollections() Collections {
	return Collections{
		Users:        "user",
		ConsentLogs:  "consentlog",
		EConsentLogs: "econsentlog",
		Deployments:  "deployment",
		Revisions:    "deploymentrevision",
	}
}

// Store implements export.PrimitiveRepository, export.UserRepository,
// export.ConsentRepository and export.DeploymentRepository.
type Store struct {
	client      *mongo.Client
	db          *mongo.Database
	collections Collections
	logger      *slog.Logger
}

// Connect opens a client for cfg and pings the primary.
func Connect(ctx context.Context, cfg config.MongoConfig) (*Store, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI).SetConnectTimeout(timeout))
	if err != nil {
		return nil, export.NewStorageError(backend, "connect", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, export.NewStorageError(backend, "ping", err)
	}

	s := NewStore(client.Database(cfg.Database))
	s.client = client
	s.logger.Info("connected to mongo", "database", cfg.Database)
	return s, nil
}

// NewStore creates a store on an existing database handle.
func NewStore(db *mongo.Database) *Store {
	return &Store{
		db:          db,
		collections: DefaultCollections(),
		logger:      slog.Default().With("component", "repository.mongo"),
	}
}

// Close disconnects the client opened by Connect.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// Ping checks that the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Client().Ping(ctx, readpref.Primary()); err != nil {
		return export.NewStorageError(backend, "ping", err)
	}
	return nil
}

// PrimitiveCollection returns the collection holding a module's primitives.
func PrimitiveCollection(moduleName string) string {
	return strings.ToLower(moduleName)
}

// RetrievePrimitives implements export.PrimitiveRepository.
func (s *Store) RetrievePrimitives(ctx context.Context, q export.PrimitiveQuery) ([]map[string]any, error) {
	field := export.FieldStartDateTime
	if q.UseCreationTime {
		field = export.FieldCreateDateTime
	}
	opts := options.Find().SetSort(bson.D{{Key: field, Value: 1}, {Key: "_id", Value: 1}})
	docs, err := s.find(ctx, PrimitiveCollection(q.ModuleName), primitiveFilter(q), opts)
	if err != nil {
		return nil, export.NewStorageError(backend, "retrieve_primitives", err)
	}
	return docs, nil
}

// primitiveFilter builds the query of a primitive lookup.
func primitiveFilter(q export.PrimitiveQuery) bson.D {
	filter := bson.D{{Key: export.FieldDeploymentID, Value: q.DeploymentID}}
	if len(q.UserIDs) > 0 {
		filter = append(filter, bson.E{Key: export.FieldUserID, Value: bson.D{{Key: "$in", Value: q.UserIDs}}})
	}

	bounds := timeRange(q.From, q.To)
	if bounds == nil {
		return filter
	}
	switch {
	case q.UseCreationTime:
		filter = append(filter, bson.E{Key: export.FieldCreateDateTime, Value: bounds})
	case q.PartialOverlap:
		filter = append(filter, bson.E{Key: "$or", Value: bson.A{
			bson.D{{Key: export.FieldStartDateTime, Value: bounds}},
			bson.D{{Key: export.FieldEndDateTime, Value: bounds}},
		}})
	default:
		filter = append(filter, bson.E{Key: export.FieldStartDateTime, Value: bounds})
	}
	return filter
}

func timeRange(from, to *time.Time) bson.D {
	var r bson.D
	if from != nil {
		r = append(r, bson.E{Key: "$gte", Value: from.UTC()})
	}
	if to != nil {
		r = append(r, bson.E{Key: "$lte", Value: to.UTC()})
	}
	return r
}

// RetrieveUsers implements export.UserRepository.
func (s *Store) RetrieveUsers(ctx context.Context, deploymentID string, userIDs []string) ([]map[string]any, error) {
	filter := bson.D{{Key: "roles.resourceId", Value: deploymentID}}
	if len(userIDs) > 0 {
		filter = append(filter, bson.E{Key: "_id", Value: bson.D{{Key: "$in", Value: idValues(userIDs)}}})
	}
	docs, err := s.find(ctx, s.collections.Users, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, export.NewStorageError(backend, "retrieve_users", err)
	}
	return docs, nil
}

// RetrieveConsentLogs implements export.ConsentRepository.
func (s *Store) RetrieveConsentLogs(ctx context.Context, consentID string, userIDs []string) ([]map[string]any, error) {
	return s.consentLogs(ctx, s.collections.ConsentLogs, "consentId", consentID, userIDs)
}

// RetrieveEConsentLogs implements export.ConsentRepository.
func (s *Store) RetrieveEConsentLogs(ctx context.Context, econsentID string, userIDs []string) ([]map[string]any, error) {
	return s.consentLogs(ctx, s.collections.EConsentLogs, "econsentId", econsentID, userIDs)
}

func (s *Store) consentLogs(ctx context.Context, collection, formField, formID string, userIDs []string) ([]map[string]any, error) {
	filter := bson.D{{Key: formField, Value: formID}}
	if len(userIDs) > 0 {
		filter = append(filter, bson.E{Key: export.FieldUserID, Value: bson.D{{Key: "$in", Value: userIDs}}})
	}
	opts := options.Find().SetSort(bson.D{{Key: export.FieldCreateDateTime, Value: 1}})
	docs, err := s.find(ctx, collection, filter, opts)
	if err != nil {
		return nil, export.NewStorageError(backend, "retrieve_consent_logs", err)
	}
	return docs, nil
}

// deploymentDoc is the stored shape of a deployment or revision.
type deploymentDoc struct {
	ObjectID       any                          `bson:"_id"`
	Name           string                       `bson:"name"`
	OrganizationID string                       `bson:"organizationId"`
	Language       string                       `bson:"language"`
	ModuleConfigs  []moduleConfigDoc            `bson:"moduleConfigs"`
	Consent        *export.ConsentForm          `bson:"consent"`
	EConsent       *export.ConsentForm          `bson:"econsent"`
	Localizations  map[string]map[string]string `bson:"localizations"`
	DeploymentID   string                       `bson:"deploymentId"`
	Version        int                          `bson:"version"`
}

type moduleConfigDoc struct {
	ID         any            `bson:"id"`
	ModuleID   string         `bson:"moduleId"`
	ModuleName string         `bson:"moduleName"`
	Version    *int           `bson:"version"`
	Body       map[string]any `bson:"configBody"`
}

func (d moduleConfigDoc) config() export.ModuleConfig {
	body, _ := normalize(d.Body).(map[string]any)
	return export.ModuleConfig{
		ID:         idString(d.ID),
		ModuleID:   d.ModuleID,
		ModuleName: d.ModuleName,
		Version:    d.Version,
		Body:       body,
	}
}

func configs(docs []moduleConfigDoc) []export.ModuleConfig {
	out := make([]export.ModuleConfig, len(docs))
	for i, d := range docs {
		out[i] = d.config()
	}
	return out
}

// RetrieveDeployment implements export.DeploymentRepository.
func (s *Store) RetrieveDeployment(ctx context.Context, deploymentID string) (*export.Deployment, error) {
	var doc deploymentDoc
	filter := bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: idValues([]string{deploymentID})}}}}
	err := s.db.Collection(s.collections.Deployments).FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, export.NewNotFoundError("deployment", deploymentID)
	}
	if err != nil {
		return nil, export.NewStorageError(backend, "retrieve_deployment", err)
	}
	return &export.Deployment{
		ID:             idString(doc.ObjectID),
		Name:           doc.Name,
		OrganizationID: doc.OrganizationID,
		Language:       doc.Language,
		ModuleConfigs:  configs(doc.ModuleConfigs),
		Consent:        doc.Consent,
		EConsent:       doc.EConsent,
		Localizations:  doc.Localizations,
	}, nil
}

// RetrieveDeploymentIDs implements export.DeploymentRepository.
func (s *Store) RetrieveDeploymentIDs(ctx context.Context, organizationID string) ([]string, error) {
	opts := options.Find().
		SetProjection(bson.D{{Key: "_id", Value: 1}}).
		SetSort(bson.D{{Key: "_id", Value: 1}})
	docs, err := s.find(ctx, s.collections.Deployments, bson.D{{Key: "organizationId", Value: organizationID}}, opts)
	if err != nil {
		return nil, export.NewStorageError(backend, "retrieve_deployment_ids", err)
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		if id, ok := d[export.FieldID].(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// RetrieveRevisionCovering implements export.DeploymentRepository.
func (s *Store) RetrieveRevisionCovering(ctx context.Context, deploymentID, configID string, version int) (*export.Revision, error) {
	var doc deploymentDoc
	err := s.db.Collection(s.collections.Revisions).
		FindOne(ctx, revisionFilter(deploymentID, configID, version), options.FindOne().SetSort(bson.D{{Key: "version", Value: 1}})).
		Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, export.NewNotFoundError("revision", fmt.Sprintf("%s@%d", configID, version))
	}
	if err != nil {
		return nil, export.NewStorageError(backend, "retrieve_revision", err)
	}
	return &export.Revision{
		DeploymentID:  doc.DeploymentID,
		Version:       doc.Version,
		ModuleConfigs: configs(doc.ModuleConfigs),
	}, nil
}

func revisionFilter(deploymentID, configID string, version int) bson.D {
	return bson.D{
		{Key: "deploymentId", Value: deploymentID},
		{Key: "moduleConfigs", Value: bson.D{{Key: "$elemMatch", Value: bson.D{
			{Key: "id", Value: bson.D{{Key: "$in", Value: idValues([]string{configID})}}},
			{Key: "version", Value: version},
		}}}},
	}
}

func (s *Store) find(ctx context.Context, collection string, filter bson.D, opts ...options.Lister[options.FindOptions]) ([]map[string]any, error) {
	cursor, err := s.db.Collection(collection).Find(ctx, filter, opts...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", collection, err)
	}
	docs := make([]map[string]any, len(raw))
	for i, d := range raw {
		docs[i] = document(d)
	}
	s.logger.Debug("documents loaded", "collection", collection, "count", len(docs))
	return docs, nil
}

// idValues matches ids stored either as strings or as ObjectIDs.
func idValues(ids []string) bson.A {
	out := make(bson.A, 0, len(ids)*2)
	for _, id := range ids {
		out = append(out, id)
		if oid, err := bson.ObjectIDFromHex(id); err == nil {
			out = append(out, oid)
		}
	}
	return out
}

func idString(v any) string {
	switch t := v.(type) {
	case bson.ObjectID:
		return t.Hex()
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

// document converts a stored document to a plain map and exposes "_id" as
// "id".
func document(d bson.M) map[string]any {
	m, _ := normalize(map[string]any(d)).(map[string]any)
	if id, ok := m["_id"]; ok {
		if _, has := m[export.FieldID]; !has {
			m[export.FieldID] = idString(id)
		}
		delete(m, "_id")
	}
	return m
}

// normalize converts BSON values to the JSON-like values records carry.
func normalize(v any) any {
	switch t := v.(type) {
	case bson.M:
		return normalize(map[string]any(t))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = normalize(child)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case bson.A:
		return normalize([]any(t))
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = normalize(child)
		}
		return out
	case bson.ObjectID:
		return t.Hex()
	case bson.DateTime:
		return t.Time().UTC().Format(time.RFC3339Nano)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case bson.Decimal128:
		return t.String()
	case int32:
		return int(t)
	case int64:
		return int(t)
	default:
		return v
	}
}
