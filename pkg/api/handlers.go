package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/laminacfg/lamina/pkg/engine"
)

// createEntityRequest is the POST body for entity creation.
type createEntityRequest struct {
	EntityType string `json:"entityType" binding:"required"`
	Name       string `json:"name" binding:"required"`
}

// GET /api/entity-definitions
func EntityDefinitionsHandler(svc *engine.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"entityTypes": svc.EntityDefinitions()})
	}
}

// GET /api/namespaces
func NamespacesHandler(svc *engine.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"namespaces": svc.Namespaces(c.Request.Context())})
	}
}

// GET /api/namespaces/:ns/entities
func ListEntitiesHandler(svc *engine.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		entities, err := svc.ListEntities(c.Request.Context(), c.Param("ns"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"entities": entities})
	}
}

// POST /api/namespaces/:ns/entities
func CreateEntityHandler(svc *engine.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createEntityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		e, err := svc.CreateEntity(c.Request.Context(), c.Param("ns"), req.EntityType, req.Name)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, e)
	}
}

// GET /api/entities/:id
func GetEntityHandler(svc *engine.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		e, err := svc.GetEntity(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, e)
	}
}

// PATCH /api/entities/:id
func UpdateEntityHandler(svc *engine.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var patch engine.Patch
		if err := c.ShouldBindJSON(&patch); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		e, err := svc.UpdateEntity(c.Request.Context(), c.Param("id"), patch)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, e)
	}
}

// DELETE /api/entities/:id?cascade=true
func DeleteEntityHandler(svc *engine.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		cascade, _ := strconv.ParseBool(c.Query("cascade"))
		updated, err := svc.DeleteEntity(c.Request.Context(), c.Param("id"), cascade)
		if err != nil {
			writeError(c, err)
			return
		}
		if updated == nil {
			updated = []*engine.Entity{}
		}
		c.JSON(http.StatusOK, gin.H{"updatedDependents": updated})
	}
}

// GET /api/entities/:id/children
func ChildrenHandler(svc *engine.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		children, err := svc.Children(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		if children == nil {
			children = []*engine.Entity{}
		}
		c.JSON(http.StatusOK, gin.H{"children": children})
	}
}

// GET /api/entities/:id/resolved?environment=prod
func ResolveHandler(svc *engine.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		resolved, err := svc.Resolve(c.Request.Context(), c.Param("id"), c.Query("environment"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, resolved)
	}
}

// POST /api/namespaces/:ns/validate?environment=prod
func ValidateHandler(svc *engine.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := svc.ValidateNamespace(c.Request.Context(), c.Param("ns"), c.Query("environment"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// POST /api/namespaces/:ns/generate
func GenerateHandler(svc *engine.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := svc.Generate(c.Request.Context(), c.Param("ns"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// GET /api/namespaces/:ns/ui-config?force=true
func UIConfigHandler(svc *engine.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		force, _ := strconv.ParseBool(c.Query("force"))
		cfg, err := svc.UIConfigFor(c.Request.Context(), c.Param("ns"), force)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, cfg)
	}
}

// writeError maps an engine error to an HTTP response.
func writeError(c *gin.Context, err error) {
	body := gin.H{
		"error": err.Error(),
		"kind":  string(engine.KindOf(err)),
	}
	var engErr *engine.Error
	if errors.As(err, &engErr) && len(engErr.Cycle) > 0 {
		body["cycle"] = engErr.Cycle
	}
	c.JSON(statusForKind(engine.KindOf(err)), body)
}

// statusForKind maps error kinds to HTTP status codes.
func statusForKind(kind engine.Kind) int {
	switch kind {
	case engine.KindNotFound:
		return http.StatusNotFound
	case engine.KindDuplicateName, engine.KindReferencedByOthers:
		return http.StatusConflict
	case engine.KindUnknownType, engine.KindInvalidArgument,
		engine.KindDanglingReference, engine.KindCyclicInheritance,
		engine.KindMissingRequiredField, engine.KindFieldTypeMismatch:
		return http.StatusBadRequest
	case engine.KindValidationFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
