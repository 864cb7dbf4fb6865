package repository

import (
	"encoding/json"

	"github.com/routerdiscovery/engine/internal/models"
)

func marshalInterfaces(ifaces models.NetworkInterfaces) ([]byte, error) {
	if ifaces == nil {
		ifaces = models.NetworkInterfaces{}
	}
	return json.Marshal(ifaces)
}

func unmarshalInterfaces(data []byte) (models.NetworkInterfaces, error) {
	var ifaces models.NetworkInterfaces
	if len(data) == 0 {
		return models.NetworkInterfaces{}, nil
	}
	if err := json.Unmarshal(data, &ifaces); err != nil {
		return nil, err
	}
	return ifaces, nil
}
