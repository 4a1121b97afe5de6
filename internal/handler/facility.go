package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dukerupert/cleanround/internal/auth"
	"github.com/dukerupert/cleanround/internal/model"
	"github.com/dukerupert/cleanround/internal/store"
)

// FacilityHandler administers buildings, floors, room types and rooms.
type FacilityHandler struct {
	facilities *store.FacilityStore
	logger     *slog.Logger
}

func NewFacilityHandler(fs *store.FacilityStore, logger *slog.Logger) *FacilityHandler {
	return &FacilityHandler{facilities: fs, logger: logger}
}

func (h *FacilityHandler) ListBuildings(w http.ResponseWriter, r *http.Request) {
	buildings, err := h.facilities.ListBuildings(auth.OrgID(r.Context()))
	if err != nil {
		h.logger.Error("list buildings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list buildings")
		return
	}
	if buildings == nil {
		buildings = []model.Building{}
	}
	writeJSON(w, http.StatusOK, buildings)
}

func (h *FacilityHandler) CreateBuilding(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string `json:"name"`
		Address string `json:"address"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	b, err := h.facilities.CreateBuilding(auth.OrgID(r.Context()), req.Name, strings.TrimSpace(req.Address))
	if err != nil {
		h.logger.Error("create building", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create building")
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// ListFloors handles GET /api/floors?building_id=
func (h *FacilityHandler) ListFloors(w http.ResponseWriter, r *http.Request) {
	buildingID, err := strconv.ParseInt(r.URL.Query().Get("building_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "building_id is required")
		return
	}
	if _, ok := h.building(w, r, buildingID); !ok {
		return
	}
	floors, err := h.facilities.ListFloors(buildingID)
	if err != nil {
		h.logger.Error("list floors", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list floors")
		return
	}
	if floors == nil {
		floors = []model.Floor{}
	}
	writeJSON(w, http.StatusOK, floors)
}

func (h *FacilityHandler) CreateFloor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BuildingID int64  `json:"building_id"`
		Name       string `json:"name"`
		Level      int    `json:"level"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if _, ok := h.building(w, r, req.BuildingID); !ok {
		return
	}
	f, err := h.facilities.CreateFloor(req.BuildingID, req.Name, req.Level)
	if err != nil {
		h.logger.Error("create floor", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create floor")
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (h *FacilityHandler) ListRoomTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.facilities.ListRoomTypes(auth.OrgID(r.Context()))
	if err != nil {
		h.logger.Error("list room types", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list room types")
		return
	}
	if types == nil {
		types = []model.RoomType{}
	}
	writeJSON(w, http.StatusOK, types)
}

func (h *FacilityHandler) CreateRoomType(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	rt, err := h.facilities.CreateRoomType(auth.OrgID(r.Context()), req.Name)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			writeError(w, http.StatusConflict, "a room type with that name already exists")
			return
		}
		h.logger.Error("create room type", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create room type")
		return
	}
	writeJSON(w, http.StatusCreated, rt)
}

// ListRooms handles GET /api/rooms?floor_id=
func (h *FacilityHandler) ListRooms(w http.ResponseWriter, r *http.Request) {
	floorID, err := strconv.ParseInt(r.URL.Query().Get("floor_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "floor_id is required")
		return
	}
	if _, ok := h.floor(w, r, floorID); !ok {
		return
	}
	rooms, err := h.facilities.ListRooms(floorID)
	if err != nil {
		h.logger.Error("list rooms", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list rooms")
		return
	}
	if rooms == nil {
		rooms = []model.Room{}
	}
	writeJSON(w, http.StatusOK, rooms)
}

func (h *FacilityHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FloorID    int64  `json:"floor_id"`
		RoomTypeID *int64 `json:"room_type_id"`
		Name       string `json:"name"`
		SortOrder  int    `json:"sort_order"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if _, ok := h.floor(w, r, req.FloorID); !ok {
		return
	}
	if req.RoomTypeID != nil {
		rt, err := h.facilities.GetRoomType(*req.RoomTypeID)
		if err != nil {
			h.logger.Error("get room type", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to get room type")
			return
		}
		if rt == nil || rt.OrgID != auth.OrgID(r.Context()) {
			writeError(w, http.StatusBadRequest, "unknown room type")
			return
		}
	}
	room, err := h.facilities.CreateRoom(req.FloorID, req.RoomTypeID, req.Name, req.SortOrder)
	if err != nil {
		h.logger.Error("create room", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create room")
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

func (h *FacilityHandler) building(w http.ResponseWriter, r *http.Request, id int64) (*model.Building, bool) {
	b, err := h.facilities.GetBuilding(id)
	if err != nil {
		h.logger.Error("get building", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get building")
		return nil, false
	}
	if b == nil || b.OrgID != auth.OrgID(r.Context()) {
		writeError(w, http.StatusNotFound, "building not found")
		return nil, false
	}
	return b, true
}

func (h *FacilityHandler) floor(w http.ResponseWriter, r *http.Request, id int64) (*model.Floor, bool) {
	f, err := h.facilities.GetFloor(id)
	if err != nil {
		h.logger.Error("get floor", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get floor")
		return nil, false
	}
	if f == nil || f.OrgID != auth.OrgID(r.Context()) {
		writeError(w, http.StatusNotFound, "floor not found")
		return nil, false
	}
	return f, true
}
