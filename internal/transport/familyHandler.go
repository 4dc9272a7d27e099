package transport

import (
	"net/http"

	"github.com/hlachaal/24hkids-platform/internal/service"

	"github.com/gin-gonic/gin"
)

type FamilyHandler struct {
	familyService service.FamilyService
}

func NewFamilyHandler(familyService service.FamilyService) *FamilyHandler {
	return &FamilyHandler{familyService: familyService}
}

func (h *FamilyHandler) RegisterGuardian(c *gin.Context) {
	var req service.RegisterGuardianRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	req.Actor = actor(c)

	guardian, err := h.familyService.RegisterGuardian(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, "Guardian registered", guardian)
}

func (h *FamilyHandler) GetGuardian(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	guardian, err := h.familyService.GetGuardian(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Guardian retrieved", guardian)
}

func (h *FamilyHandler) CreateChild(c *gin.Context) {
	var req service.CreateChildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	req.Actor = actor(c)

	child, err := h.familyService.CreateChild(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, "Child created", child)
}

func (h *FamilyHandler) GetChild(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	child, err := h.familyService.GetChild(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Child retrieved", child)
}

func (h *FamilyHandler) UpdateGuardian(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req service.UpdateGuardianRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	req.GuardianID = id
	req.Actor = actor(c)

	guardian, err := h.familyService.UpdateGuardian(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Guardian updated", guardian)
}

func (h *FamilyHandler) DeleteGuardian(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.familyService.DeleteGuardian(c.Request.Context(), id, actor(c)); err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Guardian deleted", gin.H{"id": id})
}

func (h *FamilyHandler) UpdateChild(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req service.UpdateChildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	req.ChildID = id
	req.Actor = actor(c)

	child, err := h.familyService.UpdateChild(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Child updated", child)
}

func (h *FamilyHandler) DeleteChild(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.familyService.DeleteChild(c.Request.Context(), id, actor(c)); err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Child deleted", gin.H{"id": id})
}
