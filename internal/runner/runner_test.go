package runner

import (
	"reflect"
	"testing"
)

func TestCommandFor(t *testing.T) {
	cases := []struct {
		name string
		spec LaunchSpec
		want []string
	}{
		{
			name: "default python",
			spec: LaunchSpec{Entrypoint: "/work/main.py"},
			want: []string{"python3", "/work/main.py"},
		},
		{
			name: "run command names the file",
			spec: LaunchSpec{Entrypoint: "/work/bot.py", RunCommand: "python bot.py"},
			want: []string{"python", "/work/bot.py"},
		},
		{
			name: "module-style run command keeps flags",
			spec: LaunchSpec{Entrypoint: "/work/main.py", RunCommand: "python -u main.py"},
			want: []string{"python", "-u", "/work/main.py"},
		},
		{
			name: "bare interpreter",
			spec: LaunchSpec{Entrypoint: "/work/app.py", RunCommand: "node"},
			want: []string{"node", "/work/app.py"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := commandFor(tc.spec)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("commandFor = %v, want %v", got, tc.want)
			}
		})
	}
}
