package domain

import (
	"fmt"
	"strings"
)

const avatarCDN = "https://wrpcd.net/cdn-cgi/image"

// AvatarURL renvoie l'URL CDN de la photo de profil pour un rendu en
// size px (l'asset est demandé en 2x). Les images imagedelivery.net
// acceptent directement les options à la place de "/original".
func AvatarURL(pfp string, size int) string {
	if pfp == "" {
		return ""
	}
	settings := fmt.Sprintf("/anim=false,fit=contain,width=%d,height=%d", size*2, size*2)

	if strings.Contains(pfp, "imagedelivery.net") {
		return strings.Replace(pfp, "/original", settings, 1)
	}
	return avatarCDN + settings + "/" + pfp
}
