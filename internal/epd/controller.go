package epd

// SSD1680 commands used by the 2.9" panel.
const (
	driverOutputControl    byte = 0x01
	deepSleepMode          byte = 0x10
	dataEntryModeSetting   byte = 0x11
	swReset                byte = 0x12
	temperatureSensor      byte = 0x18
	masterActivation       byte = 0x20
	displayUpdateControl1  byte = 0x21
	displayUpdateControl2  byte = 0x22
	writeRAMBW             byte = 0x24
	writeRAMRed            byte = 0x26
	setRAMXAddressStartEnd byte = 0x44
	setRAMYAddressStartEnd byte = 0x45
	setRAMXAddressCounter  byte = 0x4E
	setRAMYAddressCounter  byte = 0x4F
)

// controller is the command level view of the panel. The sequences below
// only talk to it, so they can be checked without a bus.
type controller interface {
	sendCommand(byte)
	sendData([]byte)
	waitUntilIdle()
}

func softReset(ctrl controller) {
	ctrl.waitUntilIdle()
	ctrl.sendCommand(swReset)
	ctrl.waitUntilIdle()
}

// initDisplay programs a full refresh over the whole RAM window. width and
// height are the native panel dimensions.
func initDisplay(ctrl controller, width, height int) {
	softReset(ctrl)

	ctrl.sendCommand(driverOutputControl)
	ctrl.sendData([]byte{byte((height - 1) & 0xFF), byte((height - 1) >> 8), 0x00})

	// X and Y increment, counter moves along X.
	ctrl.sendCommand(dataEntryModeSetting)
	ctrl.sendData([]byte{0x03})

	ctrl.sendCommand(setRAMXAddressStartEnd)
	ctrl.sendData([]byte{0x00, byte((width - 1) >> 3)})

	ctrl.sendCommand(setRAMYAddressStartEnd)
	ctrl.sendData([]byte{0x00, 0x00, byte((height - 1) & 0xFF), byte((height - 1) >> 8)})

	ctrl.sendCommand(displayUpdateControl1)
	ctrl.sendData([]byte{0x00, 0x80})

	// Internal temperature sensor.
	ctrl.sendCommand(temperatureSensor)
	ctrl.sendData([]byte{0x80})

	setCursor(ctrl)
	ctrl.waitUntilIdle()
}

func setCursor(ctrl controller) {
	ctrl.sendCommand(setRAMXAddressCounter)
	ctrl.sendData([]byte{0x00})
	ctrl.sendCommand(setRAMYAddressCounter)
	ctrl.sendData([]byte{0x00, 0x00})
}

// clearRAM fills both RAM planes with blank (white) bytes.
func clearRAM(ctrl controller, planeSize int) {
	blank := make([]byte, planeSize)
	for i := range blank {
		blank[i] = 0xFF
	}
	for _, plane := range []byte{writeRAMBW, writeRAMRed} {
		setCursor(ctrl)
		ctrl.sendCommand(plane)
		ctrl.sendData(blank)
	}
	ctrl.waitUntilIdle()
}

func writeFrame(ctrl controller, data []byte) {
	setCursor(ctrl)
	ctrl.sendCommand(writeRAMBW)
	ctrl.sendData(data)
}

func turnOnDisplay(ctrl controller) {
	ctrl.sendCommand(displayUpdateControl2)
	ctrl.sendData([]byte{0xF7})
	ctrl.sendCommand(masterActivation)
	ctrl.waitUntilIdle()
}

func deepSleep(ctrl controller) {
	ctrl.sendCommand(deepSleepMode)
	ctrl.sendData([]byte{0x01})
}
