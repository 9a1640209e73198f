package tuyalan

import "fmt"

// Command is the 8-bit wire command code carried in every frame header.
//
// Reference: https://github.com/tuya/tuya-iotos-embeded-sdk-wifi-ble-bk7231n/blob/master/sdk/include/lan_protocol.h
type Command uint8

const (
	CmdUDP                Command = 0x00 // FRM_TP_CFG_WF broadcast / discovery
	CmdAPConfig           Command = 0x01 // only used for AP 3.0 network config
	CmdActive             Command = 0x02 // FRM_TP_ACTV (discard)
	CmdSessKeyNegStart    Command = 0x03 // FRM_SECURITY_TYPE3 negotiate session key
	CmdSessKeyNegFinish   Command = 0x04 // FRM_SECURITY_TYPE5 finalize session key negotiation
	CmdSessKeyNegResponse Command = 0x05 // FRM_SECURITY_TYPE4 negotiate session key response
	CmdUnbind             Command = 0x06 // FRM_TP_UNBIND_DEV
	CmdControl            Command = 0x07 // FRM_TP_CMD
	CmdStatus             Command = 0x08 // FRM_TP_STAT_REPORT
	CmdHeartBeat          Command = 0x09 // FRM_TP_HB
	CmdDPQuery            Command = 0x0a // FRM_QUERY_STAT get data points
	CmdQueryWifi          Command = 0x0b // FRM_SSID_QUERY (discard)
	CmdTokenBind          Command = 0x0c // FRM_USER_BIND_REQ
	CmdControlNew         Command = 0x0d // FRM_TP_NEW_CMD
	CmdEnableWifi         Command = 0x0e // FRM_ADD_SUB_DEV_CMD
	CmdWifiInfo           Command = 0x0f // FRM_CFG_WIFI_INFO
	CmdDPQueryNew         Command = 0x10 // FRM_QUERY_STAT_NEW
	CmdSceneExecute       Command = 0x11 // FRM_SCENE_EXEC
	CmdDPRefresh          Command = 0x12 // FRM_LAN_QUERY_DP, alias UpdateDps
	CmdDiscover           Command = 0x13 // FR_TYPE_ENCRYPTION, LAN broadcast discovery
	CmdAPConfigNew        Command = 0x14 // FRM_AP_CFG_WF_V40
	CmdBroadcastLPV       Command = 0x23 // FR_TYPE_BOARDCAST_LPV34
	CmdLanGwActive        Command = 0x25 // broadcast to port 7000, ask v3.5 devices to announce
	CmdLanExtStream       Command = 0x40 // FRM_LAN_EXT_STREAM

	// CmdUpdateDps is an alias of CmdDPRefresh, kept for readability at
	// call sites that build a refresh-style request.
	CmdUpdateDps = CmdDPRefresh
)

var commandNames = map[Command]string{
	CmdUDP:                "UDP",
	CmdAPConfig:           "AP_CONFIG",
	CmdActive:             "ACTIVE",
	CmdSessKeyNegStart:    "SESS_KEY_NEG_START",
	CmdSessKeyNegFinish:   "SESS_KEY_NEG_FINISH",
	CmdSessKeyNegResponse: "SESS_KEY_NEG_RESP",
	CmdUnbind:             "UNBIND",
	CmdControl:            "CONTROL",
	CmdStatus:             "STATUS",
	CmdHeartBeat:          "HEART_BEAT",
	CmdDPQuery:            "DP_QUERY",
	CmdQueryWifi:          "QUERY_WIFI",
	CmdTokenBind:          "TOKEN_BIND",
	CmdControlNew:         "CONTROL_NEW",
	CmdEnableWifi:         "ENABLE_WIFI",
	CmdWifiInfo:           "WIFI_INFO",
	CmdDPQueryNew:         "DP_QUERY_NEW",
	CmdSceneExecute:       "SCENE_EXECUTE",
	CmdDPRefresh:          "DP_REFRESH",
	CmdDiscover:           "DISCOVER",
	CmdAPConfigNew:        "AP_CONFIG_NEW",
	CmdBroadcastLPV:       "LAN_GW_ACTIVE_LPV34",
	CmdLanGwActive:        "LAN_GW_ACTIVE",
	CmdLanExtStream:       "LAN_EXT_STREAM",
}

// String renders the command's symbolic name, or "unknown command" for an
// unrecognized code, per spec §3.
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "unknown command"
}

// Known reports whether c is a recognized command code.
func (c Command) Known() bool {
	_, ok := commandNames[c]
	return ok
}

// noHeaderCommands is the set of commands the codec never prepends a
// version header to on encode, per spec §4.3.
var noHeaderCommands = map[Command]bool{
	CmdDPQuery:            true,
	CmdDPQueryNew:         true,
	CmdUpdateDps:          true,
	CmdHeartBeat:          true,
	CmdSessKeyNegStart:    true,
	CmdSessKeyNegResponse: true,
	CmdSessKeyNegFinish:   true,
	CmdLanExtStream:       true,
}

func hasNoHeader(c Command) bool {
	return noHeaderCommands[c]
}

func (c Command) GoString() string {
	return fmt.Sprintf("Command(0x%02x, %s)", uint8(c), c.String())
}
