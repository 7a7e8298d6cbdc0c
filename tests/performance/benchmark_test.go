package performance

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/dataroomhq/dataroom/pkg/apidef"
	"github.com/dataroomhq/dataroom/pkg/docstore"
	"github.com/dataroomhq/dataroom/pkg/events"
	"github.com/dataroomhq/dataroom/pkg/filestore"
	"github.com/dataroomhq/dataroom/pkg/identity"
	"github.com/dataroomhq/dataroom/pkg/resource"
	"github.com/dataroomhq/dataroom/pkg/validator"
)

const benchSchema = `{
  "type": "object",
  "properties": {
    "amount": {"type": "number"},
    "state": {"type": "string"}
  },
  "required": ["amount"]
}`

func benchEngine(b *testing.B) (*resource.Engine, *identity.Actor) {
	b.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	entry := logger.WithField("service", "bench")

	workDir := b.TempDir()
	schemasDir := filepath.Join(workDir, "schemas")
	if err := os.Mkdir(schemasDir, 0o755); err != nil {
		b.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(schemasDir, "loan.resource.json"), []byte(benchSchema), 0o644); err != nil {
		b.Fatal(err)
	}

	registry := apidef.NewRegistry("", entry)
	err := registry.Register(&apidef.Definition{
		Name:               "loan",
		ResourceSchemeName: "loan.resource",
		Get:                &apidef.Operation{Let: []apidef.Rule{{For: "admin"}}},
		Create:             &apidef.Operation{Let: []apidef.Rule{{For: "admin"}}},
		Update:             &apidef.Operation{Let: []apidef.Rule{{For: "admin"}}},
		List:               &apidef.ListOperation{Let: []apidef.Rule{{For: "admin"}}},
		Sections: map[string]*apidef.Section{
			"terms": {
				Create: &apidef.Operation{Let: []apidef.Rule{{For: "admin"}}},
				Update: &apidef.Operation{Let: []apidef.Rule{{For: "admin"}}},
			},
		},
	})
	if err != nil {
		b.Fatal(err)
	}

	files, err := filestore.NewLocal(filepath.Join(workDir, "files"))
	if err != nil {
		b.Fatal(err)
	}
	schemas, err := validator.New(schemasDir, logger)
	if err != nil {
		b.Fatal(err)
	}

	engine, err := resource.New(resource.Config{
		Definitions: registry,
		Store:       docstore.NewAdapter(docstore.NewMemory(), []string{"loan", "admin"}, entry),
		Files:       files,
		Validator:   schemas,
		Events:      events.Discard{},
		Logger:      entry,
	})
	if err != nil {
		b.Fatal(err)
	}

	return engine, &identity.Actor{SubjectID: "bench", Groups: []string{"admin"}}
}

func BenchmarkCreate(b *testing.B) {
	engine, actor := benchEngine(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Create(ctx, "loan", docstore.Doc{"amount": float64(i)}, actor); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkGet(b *testing.B) {
	engine, actor := benchEngine(b)
	ctx := context.Background()

	created, err := engine.Create(ctx, "loan", docstore.Doc{"amount": 100.0}, actor)
	if err != nil {
		b.Fatal(err)
	}
	id := created[docstore.FieldID].(string)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Get(ctx, "loan", id, actor); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkList(b *testing.B) {
	engine, actor := benchEngine(b)
	ctx := context.Background()

	for i := 0; i < 500; i++ {
		if _, err := engine.Create(ctx, "loan", docstore.Doc{"amount": float64(i)}, actor); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		page, err := engine.List(ctx, "loan", resource.ListParams{
			Cursor: docstore.Cursor{Limit: 50},
		}, actor)
		if err != nil {
			b.Fatal(err)
		}
		if len(page.Items) != 50 {
			b.Fatalf("expected 50 items, got %d", len(page.Items))
		}
	}
}

func BenchmarkUpsertSection(b *testing.B) {
	engine, actor := benchEngine(b)
	ctx := context.Background()

	created, err := engine.Create(ctx, "loan", docstore.Doc{"amount": 100.0}, actor)
	if err != nil {
		b.Fatal(err)
	}
	id := created[docstore.FieldID].(string)

	if _, err := engine.UpsertSection(ctx, "loan", id, "terms", "create", docstore.Doc{"rate": 1.0}, actor); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		payload := docstore.Doc{"rate": float64(i), "note": fmt.Sprintf("revision %d", i)}
		if _, err := engine.UpsertSection(ctx, "loan", id, "terms", "update", payload, actor); err != nil {
			b.Fatal(err)
		}
	}
}
