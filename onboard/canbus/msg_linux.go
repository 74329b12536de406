package canbus

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

func msgFromByteArray(raw []byte) (msg CANMsg, err error) {
	if len(raw) < frameSize {
		err = ERR_FRAME_TOO_SHORT
		return
	}

	oid := binary.LittleEndian.Uint32(raw[0:4])

	// determine ID
	if oid&unix.CAN_EFF_FLAG != 0 {
		msg.ID = oid & unix.CAN_EFF_MASK
	} else {
		msg.ID = oid & unix.CAN_SFF_MASK
	}

	dataLength := int(raw[4])
	if dataLength > MAX_DATA_LEN {
		dataLength = MAX_DATA_LEN
	}
	msg.Data = make([]byte, dataLength)
	copy(msg.Data, raw[8:8+dataLength])

	return
}
