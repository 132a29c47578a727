// Package mqtt exposes the engine over MQTT with Home Assistant discovery.
package mqtt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/agusx1211/spatial-eq/internal/control"
	"github.com/agusx1211/spatial-eq/internal/engine"
	"github.com/agusx1211/spatial-eq/internal/equalizer"
	"github.com/agusx1211/spatial-eq/internal/spatial"
)

// maxBands bounds the discovery cleanup of band entities left over from a
// larger layout.
const maxBands = 32

type Options struct {
	Broker   string
	Port     int
	User     string
	Password string
	Topic    string
	// Bands is the engine's band layout, used for discovery.
	Bands []equalizer.Band
	// Color enables the noise color entity.
	Color bool
}

type Client struct {
	client      mqtt.Client
	topic       string
	bands       []equalizer.Band
	color       bool
	commandChan chan<- control.Command
}

func NewClient(o Options, cmdChan chan<- control.Command) (*Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("%s:%d", o.Broker, o.Port))
	opts.SetClientID(fmt.Sprintf("spatial-eq-%d", time.Now().Unix()))

	if o.User != "" {
		opts.SetUsername(o.User)
	}
	if o.Password != "" {
		opts.SetPassword(o.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)

	c := newClient(o, cmdChan)

	opts.OnConnect = c.onConnect
	opts.OnConnectionLost = c.onConnectionLost
	opts.SetWill(o.Topic+"/availability", "offline", 0, true)

	c.client = mqtt.NewClient(opts)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return c, nil
}

func newClient(o Options, cmdChan chan<- control.Command) *Client {
	return &Client{
		topic:       o.Topic,
		bands:       append([]equalizer.Band(nil), o.Bands...),
		color:       o.Color,
		commandChan: cmdChan,
	}
}

func (c *Client) onConnect(client mqtt.Client) {
	logrus.WithField("topic", c.topic).Info("Connected to MQTT broker")

	client.Publish(c.topic+"/availability", 0, true, "online")

	for topic, handler := range c.subscriptions() {
		if token := client.Subscribe(topic, 0, handler); token.Wait() && token.Error() != nil {
			logrus.WithField("topic", topic).WithError(token.Error()).Error("Failed to subscribe")
		}
	}

	c.cleanupStaleBands()
	c.publishDiscovery()
}

func (c *Client) subscriptions() map[string]mqtt.MessageHandler {
	return map[string]mqtt.MessageHandler{
		c.topic + "/power/set":       c.handlePower,
		c.topic + "/volume/set":      c.handleVolume,
		c.topic + "/preset/set":      c.presetHandler(false),
		c.topic + "/room/set":        c.presetHandler(true),
		c.topic + "/preset/load":     c.handlePresetLoad,
		c.topic + "/band/+/gain/set": c.handleBandGain,
		c.topic + "/band/+/set":      c.handleBand,
		c.topic + "/width/set":       c.valueHandler(control.ActionWidth, 1),
		c.topic + "/decay/set":       c.valueHandler(control.ActionDecay, 100),
		c.topic + "/damping/set":     c.valueHandler(control.ActionDamping, 100),
		c.topic + "/mix/set":         c.valueHandler(control.ActionMix, 100),
		c.topic + "/color/set":       c.valueHandler(control.ActionColor, 1),
		c.topic + "/spatial/set":     c.handleSpatial,
		c.topic + "/reset/set":       c.handleReset,
		c.topic + "/stop_all/set":    c.handleStopAll,
	}
}

func (c *Client) onConnectionLost(client mqtt.Client, err error) {
	logrus.WithError(err).Warn("MQTT connection lost")
}

func (c *Client) handlePower(client mqtt.Client, msg mqtt.Message) {
	action := control.ActionPowerOff
	if isOn(msg.Payload()) {
		action = control.ActionPowerOn
	}
	c.sendCommand(control.Command{Action: action})
}

func (c *Client) handleSpatial(client mqtt.Client, msg mqtt.Message) {
	c.sendCommand(control.Command{Action: control.ActionSpatialEnabled, Enabled: isOn(msg.Payload())})
}

// handleVolume takes a percentage of unity gain.
func (c *Client) handleVolume(client mqtt.Client, msg mqtt.Message) {
	v, ok := parseFloat(msg)
	if !ok {
		return
	}
	c.sendCommand(control.Command{Action: control.ActionVolume, Value: v / 100.0})
}

// presetHandler selects a built-in preset by name. The EQ and room selects
// each only accept names from their own catalog.
func (c *Client) presetHandler(room bool) mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		name := strings.TrimSpace(string(msg.Payload()))
		if name == control.CustomPreset {
			return
		}
		p, ok := engine.FindPreset(name)
		if ok {
			_, isRoom := p.(engine.SpatialPreset)
			ok = isRoom == room
		}
		if !ok {
			logrus.WithFields(logrus.Fields{
				"topic":  msg.Topic(),
				"preset": name,
			}).Warn("Ignoring unknown preset")
			return
		}
		c.sendCommand(control.Command{Action: control.ActionPreset, Preset: p.PresetName()})
	}
}

func (c *Client) handlePresetLoad(client mqtt.Client, msg mqtt.Message) {
	data := append(json.RawMessage(nil), msg.Payload()...)
	c.sendCommand(control.Command{Action: control.ActionLoadPreset, PresetData: data})
}

func (c *Client) handleBandGain(client mqtt.Client, msg mqtt.Message) {
	index, ok := c.bandIndex(msg.Topic())
	if !ok {
		return
	}
	v, ok := parseFloat(msg)
	if !ok {
		return
	}
	c.sendCommand(control.Command{Action: control.ActionBandGain, Index: index, Value: v})
}

func (c *Client) handleBand(client mqtt.Client, msg mqtt.Message) {
	index, ok := c.bandIndex(msg.Topic())
	if !ok {
		return
	}
	var band equalizer.Band
	if err := json.Unmarshal(msg.Payload(), &band); err != nil {
		logrus.WithField("topic", msg.Topic()).WithError(err).Warn("Ignoring malformed band")
		return
	}
	c.sendCommand(control.Command{Action: control.ActionBand, Index: index, Band: &band})
}

func (c *Client) handleReset(client mqtt.Client, msg mqtt.Message) {
	c.sendCommand(control.Command{Action: control.ActionReset})
}

func (c *Client) handleStopAll(client mqtt.Client, msg mqtt.Message) {
	c.sendCommand(control.Command{Action: control.ActionStopAll})
}

// valueHandler forwards a number divided by scale, so percentage sliders map
// onto 0..1 parameters.
func (c *Client) valueHandler(action string, scale float64) mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		v, ok := parseFloat(msg)
		if !ok {
			return
		}
		c.sendCommand(control.Command{Action: action, Value: v / scale})
	}
}

// bandIndex extracts i from <topic>/band/<i>/...
func (c *Client) bandIndex(topic string) (int, bool) {
	rest, ok := strings.CutPrefix(topic, c.topic+"/band/")
	if !ok {
		return 0, false
	}
	field, _, _ := strings.Cut(rest, "/")
	i, err := strconv.Atoi(field)
	if err != nil {
		logrus.WithField("topic", topic).Warn("Ignoring band topic without index")
		return 0, false
	}
	return i, true
}

func isOn(payload []byte) bool {
	return strings.EqualFold(strings.TrimSpace(string(payload)), "ON")
}

func parseFloat(msg mqtt.Message) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(string(msg.Payload())), 64)
	if err != nil {
		logrus.WithField("topic", msg.Topic()).WithError(err).Warn("Ignoring non-numeric payload")
		return 0, false
	}
	return v, true
}

func (c *Client) sendCommand(cmd control.Command) {
	select {
	case c.commandChan <- cmd:
	default:
		logrus.WithField("action", cmd.Action).Warn("Command channel full")
	}
}

type entity struct {
	domain string
	id     string
	config map[string]interface{}
}

func (c *Client) entities() []entity {
	device := map[string]interface{}{
		"identifiers":  []string{"spatial_eq"},
		"name":         "Spatial EQ",
		"manufacturer": "Spatial EQ",
		"model":        "Equalizer and Room",
	}

	availability := map[string]interface{}{
		"topic": c.topic + "/availability",
	}

	base := func(name, id string) map[string]interface{} {
		return map[string]interface{}{
			"name":         name,
			"unique_id":    id,
			"device":       device,
			"availability": availability,
			"state_topic":  c.topic + "/state",
		}
	}
	with := func(m map[string]interface{}, kv map[string]interface{}) map[string]interface{} {
		for k, v := range kv {
			m[k] = v
		}
		return m
	}

	out := []entity{
		{"switch", "spatial_eq_power", with(base("Power", "spatial_eq_power"), map[string]interface{}{
			"command_topic":  c.topic + "/power/set",
			"value_template": "{% if value_json.power %}ON{% else %}OFF{% endif %}",
			"payload_on":     "ON",
			"payload_off":    "OFF",
			"icon":           "mdi:power",
		})},
		{"number", "spatial_eq_volume", with(base("Volume", "spatial_eq_volume"), map[string]interface{}{
			"command_topic":       c.topic + "/volume/set",
			"value_template":      "{{ (value_json.volume * 100) | round(0) }}",
			"min":                 equalizer.MinMasterGain * 100,
			"max":                 equalizer.MaxMasterGain * 100,
			"step":                1,
			"unit_of_measurement": "%",
			"icon":                "mdi:volume-high",
		})},
	}

	eqOptions := []string{}
	roomOptions := []string{}
	for _, p := range engine.EqPresets() {
		eqOptions = append(eqOptions, p.Name)
	}
	for _, p := range engine.SpatialPresets() {
		roomOptions = append(roomOptions, p.Name)
	}
	out = append(out,
		entity{"select", "spatial_eq_preset", with(base("EQ Preset", "spatial_eq_preset"), map[string]interface{}{
			"command_topic":  c.topic + "/preset/set",
			"value_template": "{{ value_json.eq_preset }}",
			"options":        append(eqOptions, control.CustomPreset),
			"icon":           "mdi:equalizer",
		})},
		entity{"select", "spatial_eq_room", with(base("Room Preset", "spatial_eq_room"), map[string]interface{}{
			"command_topic":  c.topic + "/room/set",
			"value_template": "{{ value_json.spatial_preset }}",
			"options":        append(roomOptions, control.CustomPreset),
			"icon":           "mdi:home-sound-out",
		})},
	)

	for i, b := range c.bands {
		id := fmt.Sprintf("spatial_eq_band_%d", i)
		out = append(out, entity{"number", id, with(base(bandName(b.Frequency), id), map[string]interface{}{
			"command_topic":       fmt.Sprintf("%s/band/%d/gain/set", c.topic, i),
			"value_template":      fmt.Sprintf("{{ value_json.bands[%d].gain }}", i),
			"min":                 equalizer.MinGainDB,
			"max":                 equalizer.MaxGainDB,
			"step":                0.5,
			"unit_of_measurement": "dB",
			"icon":                "mdi:tune-vertical",
		})})
	}

	out = append(out,
		entity{"switch", "spatial_eq_spatial", with(base("Spatial", "spatial_eq_spatial"), map[string]interface{}{
			"command_topic":  c.topic + "/spatial/set",
			"value_template": "{% if value_json.spatial.enabled %}ON{% else %}OFF{% endif %}",
			"payload_on":     "ON",
			"payload_off":    "OFF",
			"icon":           "mdi:surround-sound",
		})},
		entity{"number", "spatial_eq_width", with(base("Width", "spatial_eq_width"), map[string]interface{}{
			"command_topic":  c.topic + "/width/set",
			"value_template": "{{ value_json.spatial.width }}",
			"min":            spatial.MinWidth,
			"max":            spatial.MaxWidth,
			"step":           0.05,
			"icon":           "mdi:arrow-expand-horizontal",
		})},
		percentEntity(base, with, c.topic, "Decay", "decay", "mdi:timer-sand"),
		percentEntity(base, with, c.topic, "Damping", "damping", "mdi:water-outline"),
		percentEntity(base, with, c.topic, "Mix", "mix", "mdi:tune"),
		entity{"button", "spatial_eq_reset", with(base("Reset", "spatial_eq_reset"), map[string]interface{}{
			"command_topic": c.topic + "/reset/set",
			"icon":          "mdi:restore",
		})},
		entity{"button", "spatial_eq_stop_all", with(base("Stop All", "spatial_eq_stop_all"), map[string]interface{}{
			"command_topic": c.topic + "/stop_all/set",
			"icon":          "mdi:stop",
		})},
	)

	if c.color {
		out = append(out, entity{"number", "spatial_eq_color", with(base("Noise Color", "spatial_eq_color"), map[string]interface{}{
			"command_topic":  c.topic + "/color/set",
			"value_template": "{{ value_json.color | round(0) }}",
			"min":            0,
			"max":            100,
			"step":           1,
			"icon":           "mdi:palette",
		})})
	}

	// Buttons have no state.
	for _, e := range out {
		if e.domain == "button" {
			delete(e.config, "state_topic")
		}
	}
	return out
}

func percentEntity(
	base func(name, id string) map[string]interface{},
	with func(m, kv map[string]interface{}) map[string]interface{},
	topic, name, field, icon string,
) entity {
	id := "spatial_eq_" + field
	return entity{"number", id, with(base(name, id), map[string]interface{}{
		"command_topic":       topic + "/" + field + "/set",
		"value_template":      fmt.Sprintf("{{ (value_json.spatial.%s * 100) | round(0) }}", field),
		"min":                 0,
		"max":                 100,
		"step":                1,
		"unit_of_measurement": "%",
		"icon":                icon,
	})}
}

func bandName(f float64) string {
	if f >= 1000 {
		return strconv.FormatFloat(f/1000, 'f', -1, 64) + " kHz"
	}
	return strconv.FormatFloat(f, 'f', 0, 64) + " Hz"
}

func (c *Client) publishDiscovery() {
	entities := c.entities()
	for _, e := range entities {
		c.publishEntity(e.domain, e.id, e.config)
	}
	logrus.WithField("entities", len(entities)).Info("Published MQTT discovery")
}

func (c *Client) publishEntity(domain, entityID string, config map[string]interface{}) {
	var data []byte
	if config != nil {
		data, _ = json.Marshal(config)
	}
	topic := fmt.Sprintf("homeassistant/%s/%s/config", domain, entityID)
	if token := c.client.Publish(topic, 0, true, data); token.Wait() && token.Error() != nil {
		logrus.WithField("entity", entityID).WithError(token.Error()).Error("Failed to publish discovery")
	}
}

// cleanupStaleBands removes band entities a previous run with more bands
// registered, by publishing empty config to their discovery topics.
func (c *Client) cleanupStaleBands() {
	for i := len(c.bands); i < maxBands; i++ {
		c.publishEntity("number", fmt.Sprintf("spatial_eq_band_%d", i), nil)
	}
}

// PublishState publishes s as the retained state document.
func (c *Client) PublishState(s control.State) {
	data, err := json.Marshal(s)
	if err != nil {
		logrus.WithError(err).Error("Failed to marshal state")
		return
	}
	c.client.Publish(c.topic+"/state", 0, true, data)
}

func (c *Client) Close() {
	if c.client != nil {
		c.client.Publish(c.topic+"/availability", 0, true, "offline")
		c.client.Disconnect(250)
	}
}
