package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net"
	"time"
)

// Action 客户端动作（封闭集合，见 dispatch.go 的分发表）
type Action string

const (
	ActListRooms        Action = "list_rooms"
	ActCreateRoom       Action = "create_room"
	ActJoinRoom         Action = "join_room"
	ActJoinRoomByName   Action = "join_room_by_name"
	ActJoinRoomByID     Action = "join_room_by_id"
	ActDeleteRoomByID   Action = "delete_room_by_id"
	ActDeleteRoomByName Action = "delete_room_by_name"
	ActPong             Action = "pong"
	ActSetReady         Action = "set_ready"
	ActMove             Action = "move"
	ActShoot            Action = "shoot"
	ActStartGame        Action = "start_game"
	ActLeave            Action = "leave"
	ActRevive           Action = "revive"
	ActChat             Action = "chat"
)

// AllActions 协议支持的全部动作
var AllActions = []Action{
	ActListRooms, ActCreateRoom,
	ActJoinRoom, ActJoinRoomByName, ActJoinRoomByID,
	ActDeleteRoomByID, ActDeleteRoomByName,
	ActPong,
	ActSetReady, ActMove, ActShoot, ActStartGame, ActLeave, ActRevive, ActChat,
}

// Frame 入站报文（每个 UDP 数据报一个 JSON 对象）
// 示例：{"action":"move","player_id":"alice","position":{"x":10,"y":20},"direction":"up"}
type Frame struct {
	Action    Action   `json:"action"`
	PlayerID  PlayerID `json:"player_id"`
	Position  *Vec2    `json:"position,omitempty"`
	Direction string   `json:"direction,omitempty"`
	Message   string   `json:"message,omitempty"`
	RoomID    RoomID   `json:"room_id,omitempty"`
	RoomName  string   `json:"room_name,omitempty"`
	// Name create_room 的旧字段名
	Name string `json:"name,omitempty"`
}

// Datagram 从任意传输层收到的一条原始报文
type Datagram struct {
	Addr       net.Addr
	Payload    []byte
	ReceivedAt time.Time
}

var errMalformedFrame = errors.New("malformed frame")

// DecodeFrame 解码并校验必填字段；非对象、字段类型不符、缺 action/player_id 都视为畸形
func DecodeFrame(payload []byte) (*Frame, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || payload[0] != '{' {
		return nil, errMalformedFrame
	}
	var f Frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return nil, errors.Join(errMalformedFrame, err)
	}
	if f.Action == "" || f.PlayerID == "" {
		return nil, errMalformedFrame
	}
	return &f, nil
}

// roomName create_room 兼容 room_name 与 name 两种写法
func (f *Frame) roomName() string {
	if f.RoomName != "" {
		return f.RoomName
	}
	return f.Name
}
