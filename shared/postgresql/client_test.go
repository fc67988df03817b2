package postgresql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_DSN(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   string
	}{
		{
			name:   "all fields",
			config: Config{Host: "db", Port: 5432, User: "mailflow", Password: "secret", Database: "mailflow", SSLMode: "disable"},
			want:   `host='db' port='5432' user='mailflow' password='secret' dbname='mailflow' sslmode='disable'`,
		},
		{
			name:   "password with spaces and quotes",
			config: Config{Host: "db", Port: 5432, User: "u", Password: `p a's\s`, Database: "d"},
			want:   `host='db' port='5432' user='u' password='p a\'s\\s' dbname='d'`,
		},
		{
			name:   "empty values are omitted",
			config: Config{Host: "localhost", Database: "d"},
			want:   `host='localhost' dbname='d'`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.config.DSN())
		})
	}
}
