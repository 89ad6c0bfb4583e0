package server

// 服务端下发的报文

const (
	msgUpdateState    = "update_state"
	msgJoinResponse   = "join_room_response"
	msgCreateResponse = "create_room_response"
	msgDeleteResponse = "delete_room_response"
	msgRoomsList      = "rooms_list"
	msgPing           = "ping"
)

// PlayerState 为广播给客户端的玩家状态
type PlayerState struct {
	Ready     bool      `json:"ready"`
	Position  *Vec2     `json:"position"`
	Direction Direction `json:"direction"`
	HP        int       `json:"hp"`
	Address   string    `json:"address"`
	LastPong  float64   `json:"last_pong"`
	Skin      int       `json:"skin"`
}

// BulletState 子弹快照
type BulletState struct {
	PlayerID  PlayerID  `json:"player_id"`
	Position  Vec2      `json:"position"`
	Direction Direction `json:"direction"`
	Created   float64   `json:"created"`
}

// RoomState 房间完整快照，客户端整体替换本地视图
type RoomState struct {
	RoomID      RoomID                   `json:"room_id"`
	RoomName    string                   `json:"room_name"`
	WaitingRoom []PlayerID               `json:"waiting_room"`
	Started     bool                     `json:"game_started"`
	Players     map[PlayerID]PlayerState `json:"players"`
	Bullets     []BulletState            `json:"bullets"`
}

// RoomInfo 房间列表条目
type RoomInfo struct {
	RoomID   RoomID `json:"room_id"`
	RoomName string `json:"room_name"`
}

type updateStateMessage struct {
	Action    string    `json:"action"`
	GameState RoomState `json:"game_state"`
	Timestamp float64   `json:"timestamp"`
}

type joinRoomResponse struct {
	Action   string `json:"action"`
	Success  bool   `json:"success"`
	RoomID   RoomID `json:"room_id"`
	RoomName string `json:"room_name"`
	Error    string `json:"error,omitempty"`
}

// roomResponse create/delete 共用结构
type roomResponse struct {
	Action   string `json:"action"`
	Success  bool   `json:"success"`
	RoomID   RoomID `json:"room_id,omitempty"`
	RoomName string `json:"room_name,omitempty"`
	Error    string `json:"error,omitempty"`
}

type roomsListMessage struct {
	Action string     `json:"action"`
	Rooms  []RoomInfo `json:"rooms"`
}

type pingMessage struct {
	Action string `json:"action"`
}
