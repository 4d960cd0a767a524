// Package entitygraph mirrors request analyses into neo4j so requests that
// mention the same people, organizations and places can be found together.
//
// Schema:
//
//	(:Request {id})-[:HAS_ANALYSIS]->(:Analysis {id})
//	(:Analysis)-[:MENTIONS]->(:Entity {key, type, value})
//	(:Analysis)-[:ROUTED_TO {relevance}]->(:Department {id, name})
package entitygraph

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/govworks/foia/internal/extractor"
	"github.com/govworks/foia/internal/routing"
)

type Graph struct {
	driver neo4j.DriverWithContext
}

type Config struct {
	URI      string
	Username string
	Password string
}

func New(ctx context.Context, cfg Config) (*Graph, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("verifying neo4j connectivity: %w", err)
	}

	g := &Graph{driver: driver}

	if err := g.createIndexes(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("creating indexes: %w", err)
	}

	return g, nil
}

func (g *Graph) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}

func (g *Graph) createIndexes(ctx context.Context) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS FOR (n:Request) ON (n.id)",
		"CREATE INDEX IF NOT EXISTS FOR (n:Analysis) ON (n.id)",
		"CREATE INDEX IF NOT EXISTS FOR (n:Entity) ON (n.key)",
		"CREATE INDEX IF NOT EXISTS FOR (n:Department) ON (n.id)",
	}

	for _, idx := range indexes {
		if _, err := session.Run(ctx, idx, nil); err != nil {
			return fmt.Errorf("creating index: %w", err)
		}
	}

	return nil
}

// EntityKey identifies an entity node. Values are compared case- and
// whitespace-insensitively so "ABC Corp" and "abc  corp" share a node.
func EntityKey(entityType, value string) string {
	return entityType + ":" + strings.ToLower(strings.Join(strings.Fields(value), " "))
}

// syncParams builds the query parameters for SyncRequestAnalysis with
// duplicate entities collapsed.
func syncParams(analysisID uuid.UUID, requestID *uuid.UUID, entities []extractor.Span, departments []routing.Candidate) map[string]interface{} {
	seen := make(map[string]bool, len(entities))
	ents := make([]interface{}, 0, len(entities))
	for _, e := range entities {
		key := EntityKey(e.Type, e.Value)
		if seen[key] {
			continue
		}
		seen[key] = true
		ents = append(ents, map[string]interface{}{
			"key":        key,
			"type":       e.Type,
			"value":      e.Value,
			"confidence": e.Confidence,
		})
	}

	depts := make([]interface{}, 0, len(departments))
	for _, d := range departments {
		depts = append(depts, map[string]interface{}{
			"id":        d.ID,
			"name":      d.Name,
			"relevance": d.RelevanceScore,
		})
	}

	params := map[string]interface{}{
		"analysisId":  analysisID.String(),
		"entities":    ents,
		"departments": depts,
		"requestId":   nil,
	}
	if requestID != nil {
		params["requestId"] = requestID.String()
	}
	return params
}

const syncQuery = `
	MERGE (a:Analysis {id: $analysisId})
	WITH a
	CALL {
		WITH a
		UNWIND $entities AS ent
		MERGE (e:Entity {key: ent.key})
		SET e.type = ent.type, e.value = ent.value
		MERGE (a)-[m:MENTIONS]->(e)
		SET m.confidence = ent.confidence
		RETURN count(*) AS mentioned
	}
	CALL {
		WITH a
		UNWIND $departments AS dept
		MERGE (d:Department {id: dept.id})
		SET d.name = dept.name
		MERGE (a)-[r:ROUTED_TO]->(d)
		SET r.relevance = dept.relevance
		RETURN count(*) AS routed
	}
	CALL {
		WITH a
		WITH a WHERE $requestId IS NOT NULL
		MERGE (req:Request {id: $requestId})
		MERGE (req)-[:HAS_ANALYSIS]->(a)
		RETURN count(*) AS linked
	}
	RETURN mentioned, routed, linked
`

// SyncRequestAnalysis writes one analysis with its entities and routing.
// Re-syncing the same analysis is idempotent.
func (g *Graph) SyncRequestAnalysis(ctx context.Context, analysisID uuid.UUID, requestID *uuid.UUID, entities []extractor.Span, departments []routing.Candidate) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	params := syncParams(analysisID, requestID, entities, departments)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		result, err := tx.Run(ctx, syncQuery, params)
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("syncing analysis %s: %w", analysisID, err)
	}
	return nil
}

// RelatedRequest is another request sharing entities with the one asked
// about.
type RelatedRequest struct {
	RequestID      uuid.UUID `json:"requestId"`
	SharedEntities int       `json:"sharedEntities"`
	Entities       []string  `json:"entities"`
}

// RelatedRequests returns requests whose analyses mention the same
// entities as requestID, most shared first.
func (g *Graph) RelatedRequests(ctx context.Context, requestID uuid.UUID, limit int) ([]RelatedRequest, error) {
	if limit <= 0 {
		limit = 10
	}
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (r:Request {id: $requestId})-[:HAS_ANALYSIS]->(:Analysis)-[:MENTIONS]->(e:Entity)
		      <-[:MENTIONS]-(:Analysis)<-[:HAS_ANALYSIS]-(other:Request)
		WHERE other.id <> r.id
		WITH other, collect(DISTINCT e.value) AS values
		RETURN other.id AS requestId,
		       size(values) AS shared,
		       values[0..5] AS entities
		ORDER BY shared DESC, requestId
		LIMIT $limit
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"requestId": requestID.String(),
		"limit":     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}

	var related []RelatedRequest
	for result.Next(ctx) {
		rec := result.Record()
		id, _ := rec.Get("requestId")
		shared, _ := rec.Get("shared")
		values, _ := rec.Get("entities")

		parsed, err := uuid.Parse(fmt.Sprint(id))
		if err != nil {
			continue
		}
		item := RelatedRequest{RequestID: parsed, Entities: []string{}}
		if n, ok := shared.(int64); ok {
			item.SharedEntities = int(n)
		}
		if list, ok := values.([]interface{}); ok {
			for _, v := range list {
				if s, ok := v.(string); ok {
					item.Entities = append(item.Entities, s)
				}
			}
		}
		related = append(related, item)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("reading related requests: %w", err)
	}

	return related, nil
}

// DepartmentLoad counts analyses routed to each department.
func (g *Graph) DepartmentLoad(ctx context.Context) (map[string]int, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (:Analysis)-[:ROUTED_TO]->(d:Department)
		RETURN d.id AS department, count(*) AS count
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}

	load := make(map[string]int)
	for result.Next(ctx) {
		rec := result.Record()
		dept, _ := rec.Get("department")
		count, _ := rec.Get("count")
		if n, ok := count.(int64); ok {
			load[fmt.Sprint(dept)] = int(n)
		}
	}
	return load, result.Err()
}
