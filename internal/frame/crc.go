package frame

// CRC16 returns the CRC-16/MODBUS checksum of data (init 0xFFFF, reflected polynomial 0xA001).
// On the wire the low byte is sent first.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

func appendCRC(b []byte) []byte {
	sum := CRC16(b)
	return append(b, byte(sum), byte(sum>>8))
}

func checkCRC(b []byte) bool {
	n := len(b)
	if n < 3 {
		return false
	}
	sum := CRC16(b[:n-2])
	return b[n-2] == byte(sum) && b[n-1] == byte(sum>>8)
}
