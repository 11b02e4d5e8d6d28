package bm13xx

// CRC5 computes the BM13xx register-frame checksum: poly 0x05, init 0x1F,
// MSB-first, no input/output reflection, no final XOR. The result occupies
// the low 5 bits of the returned byte.
func CRC5(data []byte) byte {
	crc := byte(0x1F)
	for _, b := range data {
		for i := 7; i >= 0; i-- {
			bit := (b >> uint(i)) & 1
			msb := (crc >> 4) & 1
			crc = (crc << 1) & 0x1F
			if bit^msb == 1 {
				crc ^= 0x05
			}
		}
	}
	return crc
}

// CRC5Valid reports whether the last byte of frame (type/flags through the
// trailing CRC byte) is a correct CRC-5 over the preceding bytes.
func CRC5Valid(frame []byte) bool {
	if len(frame) == 0 {
		return false
	}
	return CRC5(frame[:len(frame)-1]) == frame[len(frame)-1]
}

// crc16Table is the CRC-16/CCITT-FALSE lookup table: poly 0x1021, no
// reflection.
var crc16Table = func() [256]uint16 {
	var table [256]uint16
	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for j := 0; j < 8; j++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ 0x1021
			} else {
				crc <<= 1
			}
		}
		table[i] = crc
	}
	return table
}()

// CRC16 computes the BM13xx work-frame checksum: CRC-16/CCITT-FALSE,
// init 0xFFFF, no reflection, no final XOR. The 16-bit result is encoded
// big-endian on the wire.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc = (crc << 8) ^ crc16Table[byte(crc>>8)^b]
	}
	return crc
}
