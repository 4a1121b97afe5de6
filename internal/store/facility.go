package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/cleanround/internal/model"
)

// FacilityStore holds the building / floor / room hierarchy of an
// organisation and its room types.
type FacilityStore struct {
	db querier
}

func NewFacilityStore(db *sql.DB) *FacilityStore {
	return &FacilityStore{db: db}
}

// --- Building methods ---

func scanBuilding(scanner interface{ Scan(...any) error }) (*model.Building, error) {
	var b model.Building
	err := scanner.Scan(&b.ID, &b.OrgID, &b.Name, &b.Address, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

const buildingCols = `id, org_id, name, address, created_at`

func (s *FacilityStore) CreateBuilding(orgID int64, name, address string) (*model.Building, error) {
	result, err := s.db.Exec(
		`INSERT INTO buildings (org_id, name, address) VALUES (?, ?, ?)`,
		orgID, name, address,
	)
	if err != nil {
		return nil, fmt.Errorf("insert building: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetBuilding(id)
}

func (s *FacilityStore) GetBuilding(id int64) (*model.Building, error) {
	row := s.db.QueryRow(`SELECT `+buildingCols+` FROM buildings WHERE id = ?`, id)
	b, err := scanBuilding(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get building: %w", err)
	}
	return b, nil
}

func (s *FacilityStore) ListBuildings(orgID int64) ([]model.Building, error) {
	rows, err := s.db.Query(`SELECT `+buildingCols+` FROM buildings WHERE org_id = ? ORDER BY name ASC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list buildings: %w", err)
	}
	defer rows.Close()

	var buildings []model.Building
	for rows.Next() {
		b, err := scanBuilding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan building: %w", err)
		}
		buildings = append(buildings, *b)
	}
	return buildings, rows.Err()
}

// --- Floor methods ---

func scanFloor(scanner interface{ Scan(...any) error }) (*model.Floor, error) {
	var f model.Floor
	err := scanner.Scan(&f.ID, &f.BuildingID, &f.OrgID, &f.Name, &f.Level, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

const floorCols = `id, building_id, org_id, name, level, created_at`

// CreateFloor adds a floor to a building. The floor inherits the
// building's organisation.
func (s *FacilityStore) CreateFloor(buildingID int64, name string, level int) (*model.Floor, error) {
	result, err := s.db.Exec(
		`INSERT INTO floors (building_id, org_id, name, level)
		 SELECT id, org_id, ?, ? FROM buildings WHERE id = ?`,
		name, level, buildingID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert floor: %w", err)
	}
	if ok, err := affected(result); err != nil || !ok {
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("insert floor: building %d not found", buildingID)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetFloor(id)
}

func (s *FacilityStore) GetFloor(id int64) (*model.Floor, error) {
	row := s.db.QueryRow(`SELECT `+floorCols+` FROM floors WHERE id = ?`, id)
	f, err := scanFloor(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get floor: %w", err)
	}
	return f, nil
}

func (s *FacilityStore) ListFloors(buildingID int64) ([]model.Floor, error) {
	rows, err := s.db.Query(`SELECT `+floorCols+` FROM floors WHERE building_id = ? ORDER BY level ASC, name ASC`, buildingID)
	if err != nil {
		return nil, fmt.Errorf("list floors: %w", err)
	}
	defer rows.Close()

	var floors []model.Floor
	for rows.Next() {
		f, err := scanFloor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan floor: %w", err)
		}
		floors = append(floors, *f)
	}
	return floors, rows.Err()
}

// --- Room type methods ---

func (s *FacilityStore) CreateRoomType(orgID int64, name string) (*model.RoomType, error) {
	result, err := s.db.Exec(`INSERT INTO room_types (org_id, name) VALUES (?, ?)`, orgID, name)
	if err != nil {
		return nil, fmt.Errorf("insert room type: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetRoomType(id)
}

func (s *FacilityStore) GetRoomType(id int64) (*model.RoomType, error) {
	var rt model.RoomType
	err := s.db.QueryRow(`SELECT id, org_id, name, created_at FROM room_types WHERE id = ?`, id).
		Scan(&rt.ID, &rt.OrgID, &rt.Name, &rt.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get room type: %w", err)
	}
	return &rt, nil
}

func (s *FacilityStore) ListRoomTypes(orgID int64) ([]model.RoomType, error) {
	rows, err := s.db.Query(`SELECT id, org_id, name, created_at FROM room_types WHERE org_id = ? ORDER BY name ASC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list room types: %w", err)
	}
	defer rows.Close()

	var types []model.RoomType
	for rows.Next() {
		var rt model.RoomType
		if err := rows.Scan(&rt.ID, &rt.OrgID, &rt.Name, &rt.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan room type: %w", err)
		}
		types = append(types, rt)
	}
	return types, rows.Err()
}

// --- Room methods ---

func scanRoom(scanner interface{ Scan(...any) error }) (*model.Room, error) {
	var r model.Room
	var roomTypeID sql.NullInt64
	err := scanner.Scan(&r.ID, &r.FloorID, &r.OrgID, &roomTypeID, &r.Name, &r.SortOrder, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.RoomTypeID = int64Ptr(roomTypeID)
	return &r, nil
}

const roomCols = `id, floor_id, org_id, room_type_id, name, sort_order, created_at`

// CreateRoom adds a room to a floor. The room inherits the floor's
// organisation.
func (s *FacilityStore) CreateRoom(floorID int64, roomTypeID *int64, name string, sortOrder int) (*model.Room, error) {
	result, err := s.db.Exec(
		`INSERT INTO rooms (floor_id, org_id, room_type_id, name, sort_order)
		 SELECT id, org_id, ?, ?, ? FROM floors WHERE id = ?`,
		nullInt64(roomTypeID), name, sortOrder, floorID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert room: %w", err)
	}
	if ok, err := affected(result); err != nil || !ok {
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("insert room: floor %d not found", floorID)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetRoom(id)
}

func (s *FacilityStore) GetRoom(id int64) (*model.Room, error) {
	row := s.db.QueryRow(`SELECT `+roomCols+` FROM rooms WHERE id = ?`, id)
	r, err := scanRoom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	return r, nil
}

func (s *FacilityStore) ListRooms(floorID int64) ([]model.Room, error) {
	rows, err := s.db.Query(`SELECT `+roomCols+` FROM rooms WHERE floor_id = ? ORDER BY sort_order ASC, name ASC`, floorID)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []model.Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, *r)
	}
	return rooms, rows.Err()
}
