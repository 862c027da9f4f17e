package core

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingRegistrar struct {
	values  []string
	origins []string
}

func (r *recordingRegistrar) AddValue(value, origin string) {
	r.values = append(r.values, value)
	r.origins = append(r.origins, origin)
}

func TestSecretMarshalJSON(t *testing.T) {
	secret := Secret{Value: "supersecret"}
	data, err := json.Marshal(secret)
	assert.NoError(t, err)
	assert.Equal(t, "\"REDACTED\"", string(data))

	empty := Secret{}
	data, err = json.Marshal(empty)
	assert.NoError(t, err)
	assert.Equal(t, "\"\"", string(data))
}

func TestSecretString(t *testing.T) {
	assert.Equal(t, "REDACTED", fmt.Sprint(NewSecret("supersecret")))
}

func TestSecretRegister(t *testing.T) {
	r := &recordingRegistrar{}
	NewSecret("supersecret").Register(r, "pushover.token")
	NewSecret("").Register(r, "pushover.user")
	NewSecret("ignored").Register(nil, "nowhere")

	assert.Equal(t, []string{"supersecret"}, r.values)
	assert.Equal(t, []string{"pushover.token"}, r.origins)
}
