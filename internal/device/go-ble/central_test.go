package goble

import (
	"context"
	"errors"
	"testing"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/posturewatch/internal/device"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

const (
	testServiceUUID = "19B10000-E8F2-537E-4F6C-D104768A1214"
	testSensorUUID  = "19B10001-E8F2-537E-4F6C-D104768A1214"
	testAlertUUID   = "19B10002-E8F2-537E-4F6C-D104768A1214"
)

func testProfile() (*ble.Profile, *ble.Characteristic, *ble.Characteristic) {
	sensor := &ble.Characteristic{UUID: ble.MustParse(testSensorUUID), Property: ble.CharRead | ble.CharNotify}
	alert := &ble.Characteristic{UUID: ble.MustParse(testAlertUUID), Property: ble.CharIndicate}
	return &ble.Profile{
		Services: []*ble.Service{
			{UUID: ble.MustParse("1800")},
			{UUID: ble.MustParse(testServiceUUID), Characteristics: []*ble.Characteristic{sensor, alert}},
		},
	}, sensor, alert
}

type CentralTestSuite struct {
	suite.Suite
	originalFactory func() (ble.Device, error)
	dev             *mockDevice
	logger          *logrus.Logger
}

func (suite *CentralTestSuite) SetupTest() {
	suite.originalFactory = DeviceFactory
	suite.dev = &mockDevice{}
	DeviceFactory = func() (ble.Device, error) { return suite.dev, nil }
	suite.logger = logrus.New()
	suite.logger.SetLevel(logrus.PanicLevel)
}

func (suite *CentralTestSuite) TearDownTest() {
	DeviceFactory = suite.originalFactory
}

func (suite *CentralTestSuite) TestNewCentral_FactoryError() {
	// GOAL: Verify adapter creation failures surface as normalized errors
	DeviceFactory = func() (ble.Device, error) {
		return nil, errors.New("can't init hci: no devices available")
	}

	_, err := NewCentral(suite.logger)
	suite.Error(err, "central creation MUST fail when the adapter cannot be created")
	suite.ErrorIs(err, device.ErrBluetoothOff, "error chain MUST contain ErrBluetoothOff")
}

func (suite *CentralTestSuite) TestScan_ConvertsAdvertisements() {
	// GOAL: Verify raw go-ble advertisements reach the handler as device.Advertisement
	suite.dev.On("Scan", mock.Anything, false, mock.Anything).
		Run(func(args mock.Arguments) {
			h := args.Get(2).(ble.AdvHandler)
			h(&mockAdvertisement{name: "NiclaSenseCSV", addr: "aa:bb:cc:dd:ee:ff"})
		}).
		Return(nil)

	central, err := NewCentral(suite.logger)
	suite.Require().NoError(err)

	var seen []device.Advertisement
	err = central.Scan(context.Background(), false, func(adv device.Advertisement) {
		seen = append(seen, adv)
	})

	suite.NoError(err)
	suite.Require().Len(seen, 1, "handler MUST receive every advertisement")
	suite.Equal("NiclaSenseCSV", seen[0].LocalName())
	suite.Equal("aa:bb:cc:dd:ee:ff", seen[0].Addr())
	suite.Equal(-60, seen[0].RSSI())
}

func (suite *CentralTestSuite) TestScan_NormalizesBluetoothOffError() {
	suite.dev.On("Scan", mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("bluetooth is turned off"))

	central, err := NewCentral(suite.logger)
	suite.Require().NoError(err)

	err = central.Scan(context.Background(), false, func(device.Advertisement) {})
	suite.ErrorIs(err, device.ErrBluetoothOff)
}

func (suite *CentralTestSuite) TestDial_DiscoversProfileAndSubscribes() {
	// GOAL: Verify Dial returns a peripheral whose subscriptions deliver notifications
	//
	// TEST SCENARIO: dial → discover profile → subscribe notify + indicate chars → simulate payloads
	profile, sensor, alert := testProfile()
	client := newMockClient()
	client.On("DiscoverProfile", true).Return(profile, nil)
	client.On("Subscribe", sensor, false).Return(nil)
	client.On("Subscribe", alert, true).Return(nil)
	suite.dev.On("Dial", mock.Anything, mock.Anything).Return(client, nil)

	central, err := NewCentral(suite.logger)
	suite.Require().NoError(err)

	periph, err := central.Dial(context.Background(), "aa:bb:cc:dd:ee:ff")
	suite.Require().NoError(err, "dial MUST succeed")
	suite.Equal("aa:bb:cc:dd:ee:ff", periph.Address())

	var sensorData, alertData []string
	suite.Require().NoError(periph.Subscribe(testServiceUUID, testSensorUUID, func(b []byte) { sensorData = append(sensorData, string(b)) }))
	suite.Require().NoError(periph.Subscribe(testServiceUUID, testAlertUUID, func(b []byte) { alertData = append(alertData, string(b)) }))

	client.notify(sensor, []byte("1,2,3,4"))
	client.notify(alert, []byte("ALERT: tilt"))

	suite.Equal([]string{"1,2,3,4"}, sensorData)
	suite.Equal([]string{"ALERT: tilt"}, alertData)
	client.AssertExpectations(suite.T())
}

func (suite *CentralTestSuite) TestDial_ProfileFailureCancelsConnection() {
	client := newMockClient()
	client.On("DiscoverProfile", true).Return(nil, errors.New("att timeout"))
	client.On("CancelConnection").Return(nil)
	suite.dev.On("Dial", mock.Anything, mock.Anything).Return(client, nil)

	central, err := NewCentral(suite.logger)
	suite.Require().NoError(err)

	_, err = central.Dial(context.Background(), "aa:bb:cc:dd:ee:ff")
	suite.Error(err)
	suite.Contains(err.Error(), "failed to discover profile")
	client.AssertCalled(suite.T(), "CancelConnection")
}

func (suite *CentralTestSuite) TestDial_EmptyAddress() {
	central, err := NewCentral(suite.logger)
	suite.Require().NoError(err)

	_, err = central.Dial(context.Background(), "  ")
	suite.Error(err)
	suite.dev.AssertNotCalled(suite.T(), "Dial", mock.Anything, mock.Anything)
}

func TestCentralTestSuite(t *testing.T) {
	suite.Run(t, new(CentralTestSuite))
}
