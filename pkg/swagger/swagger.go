// Package swagger generates and serves OpenAPI documentation for the
// resource API. The document is derived from the loaded definitions, so it
// always reflects the registry's current state, including hot reloads.
package swagger

import (
	"fmt"
	"sort"

	"github.com/dataroomhq/dataroom/pkg/apidef"
)

// Generate builds an OpenAPI 3 document covering every registered resource
// type: CRUD, list, sections, file attachments and the event stream.
func Generate(registry *apidef.Registry, version string) map[string]any {
	paths := map[string]any{}

	types := registry.Types()
	sort.Strings(types)
	for _, name := range types {
		def, ok := registry.Get(name)
		if !ok {
			continue
		}
		addResourcePaths(paths, def)
	}

	return map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":       "Dataroom API",
			"description": "Definition-driven resource access and section lifecycle API.",
			"version":     version,
		},
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"bearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
		"security": []any{
			map[string]any{"bearerAuth": []any{}},
		},
		"paths": paths,
	}
}

func addResourcePaths(paths map[string]any, def *apidef.Definition) {
	base := "/api/v1/" + def.Name
	byID := base + "/{id}"

	collection := map[string]any{}
	if def.Create != nil {
		collection["post"] = operation(def, "create", "Create a "+def.Name, map[string]any{
			"requestBody": jsonBody(resourceSchema(def)),
			"responses":   responses(201, resourceSchema(def)),
		})
	}
	if def.List != nil {
		collection["get"] = operation(def, "list", "List "+def.Name+" resources", map[string]any{
			"parameters": listParameters(def),
			"responses":  responses(200, pageSchema(def)),
		})
	}
	if len(collection) > 0 {
		paths[base] = collection
	}

	item := map[string]any{}
	if def.Get != nil {
		item["get"] = operation(def, "get", "Fetch a "+def.Name, map[string]any{
			"parameters": []any{idParameter()},
			"responses":  responses(200, resourceSchema(def)),
		})
	}
	if def.Update != nil {
		item["patch"] = operation(def, "update", "Update a "+def.Name, map[string]any{
			"parameters":  []any{idParameter()},
			"requestBody": jsonBody(resourceSchema(def)),
			"responses":   responses(200, resourceSchema(def)),
		})
	}
	if def.Delete != nil {
		item["delete"] = operation(def, "delete", "Delete a "+def.Name, map[string]any{
			"parameters": []any{idParameter()},
			"responses":  responses(204, nil),
		})
	}
	if len(item) > 0 {
		paths[byID] = item
	}

	if def.Get != nil {
		paths[byID+"/events"] = map[string]any{
			"get": operation(def, "events", "Stream change notifications for a "+def.Name, map[string]any{
				"parameters": []any{idParameter()},
				"responses": map[string]any{
					"200": map[string]any{
						"description": "server-sent event stream",
						"content": map[string]any{
							"text/event-stream": map[string]any{
								"schema": map[string]any{"type": "string"},
							},
						},
					},
				},
			}),
		}
	}

	sections := make([]string, 0, len(def.Sections))
	for name := range def.Sections {
		sections = append(sections, name)
	}
	sort.Strings(sections)
	for _, name := range sections {
		addSectionPaths(paths, def, name, def.Sections[name])
	}
}

func addSectionPaths(paths map[string]any, def *apidef.Definition, name string, section *apidef.Section) {
	base := fmt.Sprintf("/api/v1/%s/{id}/sections/%s", def.Name, name)

	item := map[string]any{
		"get": operation(def, "get_"+name, fmt.Sprintf("Fetch the %s section", name), map[string]any{
			"parameters": []any{idParameter()},
			"responses":  responses(200, objectSchema()),
		}),
	}
	// document sections take their create/update writes through the file
	// endpoints, only payload sections accept a JSON body here
	if section.Kind() == apidef.SectionPayload {
		if section.Create != nil {
			item["post"] = operation(def, "create_"+name, fmt.Sprintf("Create the %s section", name), map[string]any{
				"parameters":  []any{idParameter()},
				"requestBody": jsonBody(objectSchema()),
				"responses":   responses(200, objectSchema()),
			})
		}
		if section.Update != nil {
			item["put"] = operation(def, "update_"+name, fmt.Sprintf("Update the %s section", name), map[string]any{
				"parameters":  []any{idParameter()},
				"requestBody": jsonBody(objectSchema()),
				"responses":   responses(200, objectSchema()),
			})
		}
	}
	if section.Delete != nil {
		item["delete"] = operation(def, "delete_"+name, fmt.Sprintf("Delete the %s section", name), map[string]any{
			"parameters": []any{idParameter()},
			"responses":  responses(204, nil),
		})
	}
	paths[base] = item

	if section.Kind() == apidef.SectionPayload {
		return
	}

	multipartUpload := map[string]any{
		"parameters": []any{idParameter()},
		"requestBody": map[string]any{
			"required": true,
			"content": map[string]any{
				"multipart/form-data": map[string]any{
					"schema": objectSchema(),
				},
			},
		},
		"responses": responses(200, objectSchema()),
	}
	upload := map[string]any{}
	if section.Create != nil {
		upload["post"] = operation(def, "upload_"+name, fmt.Sprintf("Attach files to the empty %s section", name), multipartUpload)
	}
	if section.Update != nil {
		upload["put"] = operation(def, "reupload_"+name, fmt.Sprintf("Attach files to the populated %s section", name), multipartUpload)
	}
	paths[base+"/file"] = upload
	paths[base+"/file/{fileId}"] = map[string]any{
		"get": operation(def, "download_"+name, fmt.Sprintf("Download a file from the %s section", name), map[string]any{
			"parameters": []any{idParameter(), fileIDParameter()},
			"responses": map[string]any{
				"200": map[string]any{
					"description": "file content",
					"content": map[string]any{
						"application/octet-stream": map[string]any{
							"schema": map[string]any{"type": "string", "format": "binary"},
						},
					},
				},
			},
		}),
		"delete": operation(def, "remove_"+name, fmt.Sprintf("Remove a file from the %s section", name), map[string]any{
			"parameters": []any{idParameter(), fileIDParameter()},
			"responses":  responses(204, nil),
		}),
	}
}

func operation(def *apidef.Definition, op, summary string, extra map[string]any) map[string]any {
	out := map[string]any{
		"operationId": op + "_" + def.Name,
		"summary":     summary,
		"tags":        []any{def.Name},
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func listParameters(def *apidef.Definition) []any {
	params := []any{
		queryParameter("limit", "page size, defaults to 20"),
		queryParameter("from", "cursor value from the previous page"),
		queryParameter("cursorField", "field the cursor paginates on"),
	}
	if def.List != nil {
		for _, field := range def.List.Query {
			params = append(params, queryParameter(field, "filter on "+field))
		}
	}
	return params
}

func idParameter() map[string]any {
	return map[string]any{
		"name":     "id",
		"in":       "path",
		"required": true,
		"schema":   map[string]any{"type": "string"},
	}
}

func fileIDParameter() map[string]any {
	return map[string]any{
		"name":        "fileId",
		"in":          "path",
		"required":    true,
		"description": "file id or unique prefix",
		"schema":      map[string]any{"type": "string"},
	}
}

func queryParameter(name, description string) map[string]any {
	return map[string]any{
		"name":        name,
		"in":          "query",
		"description": description,
		"schema":      map[string]any{"type": "string"},
	}
}

func jsonBody(schema map[string]any) map[string]any {
	return map[string]any{
		"required": true,
		"content": map[string]any{
			"application/json": map[string]any{"schema": schema},
		},
	}
}

func responses(status int, schema map[string]any) map[string]any {
	resp := map[string]any{"description": "success"}
	if schema != nil {
		resp["content"] = map[string]any{
			"application/json": map[string]any{"schema": schema},
		}
	}
	return map[string]any{fmt.Sprintf("%d", status): resp}
}

func resourceSchema(def *apidef.Definition) map[string]any {
	if len(def.Scheme) > 0 {
		return def.Scheme
	}
	return objectSchema()
}

func pageSchema(def *apidef.Definition) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"items": map[string]any{
				"type":  "array",
				"items": resourceSchema(def),
			},
			"cursor":  objectSchema(),
			"hasMore": map[string]any{"type": "boolean"},
		},
	}
}

func objectSchema() map[string]any {
	return map[string]any{"type": "object"}
}
