package storage

import "testing"

func TestBuildObjectPath(t *testing.T) {
	cases := []struct {
		name    string
		purpose FilePurpose
		params  PathParams
		want    string
		wantErr bool
	}{
		{
			name:    "source file",
			purpose: PurposeSourceFile,
			params:  PathParams{RequestID: "creq_1", UploadID: "up_1", FileName: "sketch.png"},
			want:    "customizations/creq_1/sources/up_1/sketch.png",
		},
		{
			name:    "final work",
			purpose: PurposeFinalWork,
			params:  PathParams{RequestID: "creq_1", SubmissionID: "sub_2", FileName: "final.pdf"},
			want:    "customizations/creq_1/final/sub_2/final.pdf",
		},
		{
			name:    "preview",
			purpose: PurposePreview,
			params:  PathParams{RequestID: "creq_1", SubmissionID: "sub_2", FileName: "preview.jpg"},
			want:    "customizations/creq_1/previews/sub_2/preview.jpg",
		},
		{
			name:    "traversal rejected",
			purpose: PurposeSourceFile,
			params:  PathParams{RequestID: "creq_1", UploadID: "up_1", FileName: "../evil"},
			wantErr: true,
		},
		{
			name:    "slash rejected",
			purpose: PurposeFinalWork,
			params:  PathParams{RequestID: "creq/1", SubmissionID: "sub_2", FileName: "final.pdf"},
			wantErr: true,
		},
		{
			name:    "unknown purpose",
			purpose: FilePurpose("thumbnail"),
			params:  PathParams{RequestID: "creq_1", FileName: "x.png"},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := BuildObjectPath(tc.purpose, tc.params)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("build path: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}
