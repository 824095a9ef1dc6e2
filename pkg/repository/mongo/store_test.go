package mongo

import (
	"context"
	"reflect"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"cohortline/exportd/pkg/config"
	"cohortline/exportd/pkg/export"
)

func TestPrimitiveFilter(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	bounds := bson.D{{Key: "$gte", Value: from}, {Key: "$lte", Value: to}}

	tests := []struct {
		name  string
		query export.PrimitiveQuery
		want  bson.D
	}{
		{
			name:  "deployment only",
			query: export.PrimitiveQuery{DeploymentID: "d1"},
			want:  bson.D{{Key: "deploymentId", Value: "d1"}},
		},
		{
			name:  "users and start range",
			query: export.PrimitiveQuery{DeploymentID: "d1", UserIDs: []string{"u1"}, From: &from, To: &to},
			want: bson.D{
				{Key: "deploymentId", Value: "d1"},
				{Key: "userId", Value: bson.D{{Key: "$in", Value: []string{"u1"}}}},
				{Key: "startDateTime", Value: bounds},
			},
		},
		{
			name:  "creation time",
			query: export.PrimitiveQuery{DeploymentID: "d1", From: &from, To: &to, UseCreationTime: true, PartialOverlap: true},
			want: bson.D{
				{Key: "deploymentId", Value: "d1"},
				{Key: "createDateTime", Value: bounds},
			},
		},
		{
			name:  "partial overlap",
			query: export.PrimitiveQuery{DeploymentID: "d1", From: &from, To: &to, PartialOverlap: true},
			want: bson.D{
				{Key: "deploymentId", Value: "d1"},
				{Key: "$or", Value: bson.A{
					bson.D{{Key: "startDateTime", Value: bounds}},
					bson.D{{Key: "endDateTime", Value: bounds}},
				}},
			},
		},
		{
			name:  "open ended",
			query: export.PrimitiveQuery{DeploymentID: "d1", From: &from},
			want: bson.D{
				{Key: "deploymentId", Value: "d1"},
				{Key: "startDateTime", Value: bson.D{{Key: "$gte", Value: from}}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := primitiveFilter(tt.query); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("primitiveFilter() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDocument_Normalizes(t *testing.T) {
	oid := bson.NewObjectID()
	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	got := document(bson.M{
		"_id":           oid,
		"startDateTime": bson.NewDateTimeFromTime(at),
		"value":         int32(7),
		"count":         int64(9),
		"nested":        bson.D{{Key: "when", Value: bson.NewDateTimeFromTime(at)}},
		"list":          bson.A{bson.M{"ref": oid}, "x"},
	})

	want := map[string]any{
		"id":            oid.Hex(),
		"startDateTime": "2024-03-01T08:00:00Z",
		"value":         7,
		"count":         9,
		"nested":        map[string]any{"when": "2024-03-01T08:00:00Z"},
		"list":          []any{map[string]any{"ref": oid.Hex()}, "x"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("document() = %#v\nwant %#v", got, want)
	}
	if _, ok := export.TimeValue(got["startDateTime"]); !ok {
		t.Error("normalized datetime should parse as a time value")
	}
}

func TestDocument_KeepsExplicitID(t *testing.T) {
	got := document(bson.M{"_id": "internal", "id": "public"})
	if got["id"] != "public" {
		t.Errorf("id = %v", got["id"])
	}
	if _, ok := got["_id"]; ok {
		t.Error("_id should be removed")
	}
}

func TestIDValues(t *testing.T) {
	oid := bson.NewObjectID()
	got := idValues([]string{"plain", oid.Hex()})
	want := bson.A{"plain", oid.Hex(), oid}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("idValues() = %v, want %v", got, want)
	}
}

func TestModuleConfigDoc(t *testing.T) {
	v := 3
	mc := moduleConfigDoc{
		ID:       bson.ObjectID{1},
		ModuleID: "Weight",
		Version:  &v,
		Body:     map[string]any{"unit": "kg", "thresholds": bson.A{bson.D{{Key: "max", Value: int32(120)}}}},
	}.config()

	if mc.ID != (bson.ObjectID{1}).Hex() || mc.Name() != "Weight" || *mc.Version != 3 {
		t.Errorf("config = %+v", mc)
	}
	want := []any{map[string]any{"max": 120}}
	if !reflect.DeepEqual(mc.Body["thresholds"], want) {
		t.Errorf("body = %#v", mc.Body)
	}
}

func TestRevisionFilter(t *testing.T) {
	f := revisionFilter("d1", "cfg", 2)
	if f[0].Key != "deploymentId" || f[0].Value != "d1" {
		t.Errorf("filter = %v", f)
	}
	match := f[1].Value.(bson.D)[0]
	if match.Key != "$elemMatch" {
		t.Errorf("filter = %v", f)
	}
}

func TestPrimitiveCollection(t *testing.T) {
	if got := PrimitiveCollection("BloodPressure"); got != "bloodpressure" {
		t.Errorf("PrimitiveCollection() = %s", got)
	}
}

func TestConnect_RequiresURI(t *testing.T) {
	if _, err := Connect(context.Background(), config.MongoConfig{}); err == nil {
		t.Error("Connect() without uri should fail")
	}
}
