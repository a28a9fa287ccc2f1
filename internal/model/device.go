package model

import "time"

// DeviceType はデバイスの種別を表す。
type DeviceType string

const (
	DeviceTypeBulb       DeviceType = "bulb"
	DeviceTypeSensor     DeviceType = "sensor"
	DeviceTypeThermostat DeviceType = "thermostat"
)

// DefaultDeviceStatus は登録直後のデバイス状態。
const DefaultDeviceStatus = "off"

// ParseDeviceType は文字列をDeviceTypeに変換する。
// 空文字の場合はbulbを返す。未知の値の場合はfalseを返す。
func ParseDeviceType(s string) (DeviceType, bool) {
	if s == "" {
		return DeviceTypeBulb, true
	}
	switch DeviceType(s) {
	case DeviceTypeBulb, DeviceTypeSensor, DeviceTypeThermostat:
		return DeviceType(s), true
	default:
		return "", false
	}
}

// Device はユーザーが所有するIoTデバイスを表す。
// DeviceID はプロバイダー発行の識別子で、システム全体で一意。
type Device struct {
	ID        string
	UserID    string
	DeviceID  string
	Name      string
	Type      DeviceType
	Status    string
	LastSeen  time.Time
	CreatedAt time.Time
}
