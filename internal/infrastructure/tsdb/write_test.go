package tsdb

import (
	"testing"
	"time"
)

func TestFormatLineProtocol(t *testing.T) {
	ts := time.Unix(1770292800, 0)

	tests := []struct {
		name        string
		measurement string
		tags        map[string]string
		fields      map[string]any
		want        string
	}{
		{
			name:        "sorted tags and fields",
			measurement: "temperature",
			tags:        map[string]string{"location1": "Lounge", "device_id": "d1"},
			fields:      map[string]any{"value": 21.5, "text": "21.5 C"},
			want:        `temperature,device_id=d1,location1=Lounge text="21.5 C",value=21.5 1770292800000000000`,
		},
		{
			name:        "escaping",
			measurement: "my meas,x",
			tags:        map[string]string{"device name": "a=b,c"},
			fields:      map[string]any{"s": `say "hi" \o/`},
			want:        `my\ meas\,x,device\ name=a\=b\,c s="say \"hi\" \\o/" 1770292800000000000`,
		},
		{
			name:        "empty tag values dropped",
			measurement: "m",
			tags:        map[string]string{"device_id": "d1", "location2": ""},
			fields:      map[string]any{"v": 1.0},
			want:        `m,device_id=d1 v=1 1770292800000000000`,
		},
		{
			name:        "integer and bool",
			measurement: "m",
			fields:      map[string]any{"n": int64(5), "on": true},
			want:        `m n=5i,on=true 1770292800000000000`,
		},
		{
			name:        "newline injection stripped",
			measurement: "m\nevil",
			tags:        map[string]string{"k": "v\nx"},
			fields:      map[string]any{"v": 2.0},
			want:        `mevil,k=vx v=2 1770292800000000000`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatLineProtocol(tt.measurement, tt.tags, tt.fields, ts); got != tt.want {
				t.Errorf("formatLineProtocol() =\n  %s\nwant\n  %s", got, tt.want)
			}
		})
	}
}
