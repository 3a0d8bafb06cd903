package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rl1809/reservation/internal/adapter/csvimport"
	"github.com/rl1809/reservation/internal/core/domain"
	"github.com/rl1809/reservation/internal/core/service"
)

type CreateMemberHTTPRequest struct {
	Name    string `json:"name"`
	Surname string `json:"surname"`
}

type CreateInventoryHTTPRequest struct {
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	RemainingCount int       `json:"remainingCount"`
	ExpirationDate time.Time `json:"expirationDate"`
}

func (h *HTTPHandler) ListMembers(c *gin.Context) {
	members, err := h.members.List(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, members)
}

func (h *HTTPHandler) GetMember(c *gin.Context) {
	id, ok := h.pathID(c, "Member id is null or empty.")
	if !ok {
		return
	}

	member, err := h.members.GetByID(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, member)
}

func (h *HTTPHandler) CreateMember(c *gin.Context) {
	var req CreateMemberHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, bindError(err, ""))
		return
	}

	member, err := h.members.Create(c.Request.Context(), service.CreateMemberInput{
		Name:    req.Name,
		Surname: req.Surname,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, member)
}

func (h *HTTPHandler) UploadMembers(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		h.writeError(c, domain.BadRequest("Invalid file format. Please upload a CSV file."))
		return
	}
	if err := csvimport.CheckFilename(file.Filename); err != nil {
		h.writeError(c, err)
		return
	}

	f, err := file.Open()
	if err != nil {
		h.writeError(c, domain.BadRequest("Invalid file format. Please upload a CSV file."))
		return
	}
	defer f.Close()

	members, err := csvimport.ParseMembers(f)
	if err != nil {
		h.writeError(c, err)
		return
	}

	created, err := h.members.BulkCreate(c.Request.Context(), members)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, created)
}

func (h *HTTPHandler) ListInventory(c *gin.Context) {
	items, err := h.inventory.List(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *HTTPHandler) GetInventory(c *gin.Context) {
	id, ok := h.pathID(c, "Inventory id is null or empty.")
	if !ok {
		return
	}

	item, err := h.inventory.GetByID(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *HTTPHandler) CreateInventory(c *gin.Context) {
	var req CreateInventoryHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, bindError(err, "expirationDate"))
		return
	}

	item, err := h.inventory.Create(c.Request.Context(), service.CreateInventoryInput{
		Title:          req.Title,
		Description:    req.Description,
		RemainingCount: req.RemainingCount,
		ExpirationDate: req.ExpirationDate,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *HTTPHandler) UploadInventory(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		h.writeError(c, domain.BadRequest("Invalid file format. Please upload a CSV file."))
		return
	}
	if err := csvimport.CheckFilename(file.Filename); err != nil {
		h.writeError(c, err)
		return
	}

	f, err := file.Open()
	if err != nil {
		h.writeError(c, domain.BadRequest("Invalid file format. Please upload a CSV file."))
		return
	}
	defer f.Close()

	items, err := csvimport.ParseInventory(f)
	if err != nil {
		h.writeError(c, err)
		return
	}

	created, err := h.inventory.BulkCreate(c.Request.Context(), items)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, created)
}
