package openapiemitter

import (
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/mark3labs/docweave/internal/catalog"
	"github.com/mark3labs/docweave/internal/source"
)

// SecuritySchemeName is the scheme required by endpoints marked auth.
const SecuritySchemeName = "bearerAuth"

const formMediaType = "application/x-www-form-urlencoded"

var (
	supportedMethods = []string{
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
		http.MethodDelete, http.MethodHead, http.MethodOptions, http.MethodTrace,
	}
	colonParam    = regexp.MustCompile(`^:(\w+)$`)
	templateParam = regexp.MustCompile(`\{(\w+)\}`)
)

// Build converts the catalog into an OpenAPI document. Each endpoint table
// entry becomes one operation tagged with its document's name; schemas are
// inferred from the example body, query and response values.
func Build(c *catalog.Catalog, version string, logger logrus.FieldLogger) *openapi3.T {
	if version == "" {
		version = DefaultVersion
	}
	title := c.Project.Name
	if title == "" {
		title = source.DefaultProjectName
	}
	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info:    &openapi3.Info{Title: title, Description: c.Project.Description, Version: version},
		Paths:   openapi3.Paths{},
	}

	needsAuth := false
	for _, d := range c.Documents {
		tagged := false
		for _, ep := range d.Endpoints {
			if winner, ok := c.Endpoints.Get(ep.URL, ep.Method); !ok || winner != ep {
				continue
			}
			p, ok := pathKey(ep.URL)
			if !ok {
				logger.WithFields(logrus.Fields{"doc": d.Path, "url": ep.URL}).Warn("endpoint url has no path, not exported")
				continue
			}
			method := strings.ToUpper(ep.Method)
			if !slices.Contains(supportedMethods, method) {
				logger.WithFields(logrus.Fields{"doc": d.Path, "method": ep.Method}).Warn("unsupported method, not exported")
				continue
			}
			doc.AddOperation(p, method, operation(ep, method, d.Name, p))
			needsAuth = needsAuth || ep.Auth
			tagged = true
		}
		if tagged && !slices.ContainsFunc(doc.Tags, func(t *openapi3.Tag) bool { return t.Name == d.Name }) {
			doc.Tags = append(doc.Tags, &openapi3.Tag{Name: d.Name, Description: d.Description})
		}
	}

	if needsAuth {
		doc.Components = &openapi3.Components{
			SecuritySchemes: openapi3.SecuritySchemes{
				SecuritySchemeName: &openapi3.SecuritySchemeRef{Value: openapi3.NewJWTSecurityScheme()},
			},
		}
	}
	return doc
}

func operation(ep *catalog.Endpoint, method, tag, p string) *openapi3.Operation {
	op := openapi3.NewOperation()
	op.Summary = ep.Name
	op.Description = ep.Description
	op.Tags = []string{tag}

	for _, m := range templateParam.FindAllStringSubmatch(p, -1) {
		op.AddParameter(openapi3.NewPathParameter(m[1]).WithSchema(openapi3.NewStringSchema()))
	}
	if q, ok := ep.Query.(map[string]any); ok {
		for _, name := range lo.Keys(q) {
			op.AddParameter(openapi3.NewQueryParameter(name).WithSchema(SchemaFor(q[name])))
		}
		slices.SortFunc(op.Parameters, func(a, b *openapi3.ParameterRef) int {
			if a.Value.In != b.Value.In {
				return strings.Compare(a.Value.In, b.Value.In)
			}
			return strings.Compare(a.Value.Name, b.Value.Name)
		})
	}

	if ep.Body != nil && method != http.MethodGet && method != http.MethodHead {
		content := openapi3.NewContentWithSchema(SchemaFor(ep.Body), []string{mediaType(ep.BodyMode)})
		for _, mt := range content {
			mt.Example = ep.Body
		}
		op.RequestBody = &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().WithContent(content)}
	}

	resp := openapi3.NewResponse().WithDescription("OK")
	if ep.Response != nil {
		resp = resp.WithJSONSchema(SchemaFor(ep.Response))
		resp.Content.Get("application/json").Example = ep.Response
	}
	op.AddResponse(http.StatusOK, resp)

	if ep.Auth {
		op.Security = openapi3.NewSecurityRequirements().With(openapi3.NewSecurityRequirement().Authenticate(SecuritySchemeName))
	}
	return op
}

func mediaType(bodyMode string) string {
	switch strings.ToLower(bodyMode) {
	case "form", "urlencoded", "x-www-form-urlencoded":
		return formMediaType
	case "form-data", "multipart":
		return "multipart/form-data"
	case "raw", "text":
		return "text/plain"
	default:
		return "application/json"
	}
}

// pathKey turns an endpoint URL into an OpenAPI path: the scheme, host and
// query are dropped and :name segments become {name}.
func pathKey(raw string) (string, bool) {
	p := raw
	if strings.Contains(p, "://") {
		u, err := url.Parse(p)
		if err != nil {
			return "", false
		}
		p = u.Path
	}
	p, _, _ = strings.Cut(p, "?")
	if p == "" {
		return "", false
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = colonParam.ReplaceAllString(s, "{$1}")
	}
	return strings.Join(segs, "/"), true
}

// SchemaFor infers a schema from an example value. Arrays are templates, so
// only the first element shapes the item schema.
func SchemaFor(v any) *openapi3.Schema {
	switch x := v.(type) {
	case nil:
		return openapi3.NewSchema().WithNullable()
	case bool:
		return openapi3.NewBoolSchema()
	case json.Number:
		if _, err := x.Int64(); err == nil {
			return openapi3.NewIntegerSchema()
		}
		return openapi3.NewFloat64Schema()
	case float64:
		return openapi3.NewFloat64Schema()
	case string:
		return openapi3.NewStringSchema()
	case []any:
		items := openapi3.NewSchema()
		if len(x) > 0 {
			items = SchemaFor(x[0])
		}
		return openapi3.NewArraySchema().WithItems(items)
	case map[string]any:
		s := openapi3.NewObjectSchema()
		for k, val := range x {
			s.WithProperty(k, SchemaFor(val))
		}
		return s
	default:
		return openapi3.NewSchema()
	}
}
