package local

import (
	"context"
	"fmt"
	"strings"
)

// Descriptor is a caller-supplied set of named fields describing a layer or
// project. Fields are looked up best-effort; missing ones get placeholders.
type Descriptor map[string]any

// Field returns the value for key as text, or fallback when the key is
// missing or null.
func (d Descriptor) Field(key, fallback string) string {
	v, ok := d[key]
	if !ok || v == nil {
		return fallback
	}
	return fmt.Sprint(v)
}

// Layers returns the nested layer descriptors of a project descriptor.
func (d Descriptor) Layers() []Descriptor {
	switch v := d["layers"].(type) {
	case []Descriptor:
		return v
	case []map[string]any:
		out := make([]Descriptor, len(v))
		for i, m := range v {
			out[i] = m
		}
		return out
	case []any:
		var out []Descriptor
		for _, item := range v {
			switch m := item.(type) {
			case map[string]any:
				out = append(out, m)
			case Descriptor:
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

const layerAnalystPrompt = `You are Kue, an AI assistant specialized in Geographic Information Systems (GIS) and spatial data analysis.
You help users understand and analyze geographic data layers, maps, and spatial relationships.

When analyzing GIS data, consider:
- Layer type (vector/raster/point cloud)
- Geometry types and feature counts
- Spatial relationships and patterns
- Attribute data and metadata
- Potential use cases and insights

Provide clear, informative responses that help users understand their geographic data.`

const projectDescriberPrompt = `You are an expert GIS analyst. Generate concise, informative descriptions for map projects based on their layers and metadata.`

const stylistPrompt = `You are a GIS styling expert. Suggest appropriate styling options for different types of geographic data layers.`

const projectAnalystPrompt = `You are a GIS (Geographic Information System) expert assistant. Analyze the project you are given and answer the user's question.

Provide a detailed, helpful response that demonstrates your GIS expertise. If the question is about data analysis, suggest what insights could be gained. If it's about styling, provide specific recommendations. If it's about the project structure, explain the components and their purposes.`

// AnalyzeLayer answers a free-text question about one layer.
func (c *Client) AnalyzeLayer(ctx context.Context, layer Descriptor, question string) Reply {
	user := fmt.Sprintf(`Layer Information:
- Name: %s
- Type: %s
- Feature Count: %s
- Geometry Type: %s
- Description: %s
- Created: %s

User Question: %s

Please analyze this GIS layer and answer the user's question.`,
		layer.Field("name", "Unknown"),
		layer.Field("layer_type", "Unknown"),
		layer.Field("feature_count", "Unknown"),
		layer.Field("geometry_type", "Unknown"),
		layer.Field("description", "No description"),
		layer.Field("created_at", "Unknown"),
		question,
	)
	return c.Chat(ctx, layerAnalystPrompt, user)
}

// GenerateProjectDescription writes a short description of a map project.
func (c *Client) GenerateProjectDescription(ctx context.Context, project Descriptor) Reply {
	user := fmt.Sprintf(`Map Project: %s
Layers: %s layers
Description: %s

Generate a brief, professional description of this map project.`,
		project.Field("name", "Unknown"),
		project.Field("layer_count", "0"),
		project.Field("description", "No description provided"),
	)
	return c.Chat(ctx, projectDescriberPrompt, user)
}

// AnalyzeProject answers a question about a whole project, including the
// name, type and description of each of its layers.
func (c *Client) AnalyzeProject(ctx context.Context, project Descriptor, question string) Reply {
	var layers strings.Builder
	for _, l := range project.Layers() {
		fmt.Fprintf(&layers, "- %s (%s): %s\n",
			l.Field("name", "Unknown"),
			l.Field("type", "Unknown"),
			l.Field("description", "No description"),
		)
	}
	user := fmt.Sprintf(`Project Information:
- Name: %s
- Description: %s
- Number of Layers: %s

Layers:
%s
User Question: %s`,
		project.Field("name", "Unknown"),
		project.Field("description", "No description"),
		project.Field("layer_count", "0"),
		layers.String(),
		question,
	)
	return c.Chat(ctx, projectAnalystPrompt, user)
}

// SuggestLayerStyling asks the model for styling options and recovers the
// JSON object from its reply. The parsed object is returned as-is; when
// the call fails or no object can be recovered, DefaultStyling is returned.
// A degraded reply is never scanned, so an error body that happens to
// contain braces is not taken as a suggestion.
func (c *Client) SuggestLayerStyling(ctx context.Context, layer Descriptor) Styling {
	user := fmt.Sprintf(`Layer: %s
Type: %s
Geometry: %s
Feature Count: %s

Suggest appropriate styling options for this layer. Return as JSON with:
- color_scheme: suggested color scheme
- opacity: suggested opacity (0-1)
- stroke_width: for vector layers
- point_size: for point layers
- classification: suggested classification method`,
		layer.Field("name", "Unknown"),
		layer.Field("layer_type", "Unknown"),
		layer.Field("geometry_type", "Unknown"),
		layer.Field("feature_count", "Unknown"),
	)

	reply := c.Chat(ctx, stylistPrompt, user)
	if reply.Degraded() {
		return DefaultStyling()
	}
	if obj, ok := ExtractJSONObject(reply.Text); ok {
		return obj
	}
	return DefaultStyling()
}
