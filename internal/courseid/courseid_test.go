package courseid

import "testing"

func TestFromArchiveName(t *testing.T) {
	tests := []struct {
		path     string
		want     string
		key      string
		fallback bool
	}{
		{"/src/course-v1:MITx+6.00x+2T2024.tar.gz", "MITx_6.00x_2T2024", "course-v1:MITx+6.00x+2T2024", false},
		{"MITx+6.00x+2T2024.tgz", "MITx_6.00x_2T2024", "course-v1:MITx+6.00x+2T2024", false},
		{"edX_DemoX_Demo_Course.tar.gz", "edX_DemoX_Demo_Course", "course-v1:edX+DemoX_Demo+Course", false},
		{"HarvardX.CS50.2024.TAR.GZ", "HarvardX_CS50_2024", "course-v1:HarvardX+CS50+2024", false},
		{"export.tar.gz", "export", "", true},
		{"my course (final).tar.gz", "my_course_final", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			id := FromArchiveName(tt.path)
			if id.String() != tt.want {
				t.Fatalf("String() = %q, want %q", id.String(), tt.want)
			}
			if id.Key() != tt.key {
				t.Fatalf("Key() = %q, want %q", id.Key(), tt.key)
			}
			if id.Fallback != tt.fallback {
				t.Fatalf("Fallback = %v, want %v", id.Fallback, tt.fallback)
			}
		})
	}
}

func TestFromArchiveNameDeterministic(t *testing.T) {
	a := FromArchiveName("/a/MITx+6.00x+2T2024.tar.gz")
	b := FromArchiveName("/b/MITx+6.00x+2T2024.tar.gz")
	if a.String() != b.String() {
		t.Fatalf("expected stable id, got %q and %q", a, b)
	}
}

func TestStem(t *testing.T) {
	cases := map[string]string{
		"/x/a.tar.gz": "a",
		"b.tgz":       "b",
		"c.TAR":       "c",
		"d.zip":       "d",
	}
	for in, want := range cases {
		if got := Stem(in); got != want {
			t.Errorf("Stem(%q) = %q, want %q", in, got, want)
		}
	}
}
